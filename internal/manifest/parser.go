// Package manifest parses HLS playlist documents into ordered segment
// lists. It performs no I/O; callers fetch the playlist text themselves.
package manifest

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/grafov/m3u8"

	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

// Result is the outcome of parsing one playlist document. Exactly one of
// Media and Variants is populated. When the document is a master playlist
// the parser does not recurse; the caller picks a variant and re-invokes
// parsing on its media playlist, keeping variant selection explicit.
type Result struct {
	IsMaster bool
	Media    *models.Manifest
	Variants []models.VariantRef
}

// Parse decodes playlist text, resolving relative URIs against baseURL.
func Parse(data []byte, baseURL string) (*Result, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &models.ParseError{Kind: models.ParseMalformed, Err: fmt.Errorf("invalid base URL %q: %w", baseURL, err)}
	}

	playlist, listType, err := m3u8.Decode(*bytes.NewBuffer(data), true)
	if err != nil {
		return nil, &models.ParseError{Kind: models.ParseMalformed, Err: err}
	}

	if listType == m3u8.MASTER {
		return parseMaster(playlist.(*m3u8.MasterPlaylist), base)
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, &models.ParseError{Kind: models.ParseUnsupportedFeature, Err: fmt.Errorf("unrecognized playlist type %d", listType)}
	}
	return parseMedia(media, base)
}

func parseMaster(master *m3u8.MasterPlaylist, base *url.URL) (*Result, error) {
	if len(master.Variants) == 0 {
		return nil, &models.ParseError{Kind: models.ParseMalformed, Err: fmt.Errorf("master playlist contains no variants")}
	}

	variants := make([]models.VariantRef, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		uri, err := resolveURI(base, v.URI)
		if err != nil {
			return nil, err
		}
		variants = append(variants, models.VariantRef{
			URI:        uri,
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
		})
	}

	return &Result{IsMaster: true, Variants: variants}, nil
}

func parseMedia(media *m3u8.MediaPlaylist, base *url.URL) (*Result, error) {
	var segments []models.Segment
	var keyRef string

	for _, seg := range media.Segments {
		if seg == nil {
			break
		}

		uri, err := resolveURI(base, seg.URI)
		if err != nil {
			return nil, err
		}

		// A key tag stays in effect for every following segment until the
		// next one appears.
		if seg.Key != nil {
			keyRef = seg.Key.URI
		}

		segment := models.Segment{
			Sequence: len(segments),
			URI:      uri,
			Duration: seg.Duration,
			KeyRef:   keyRef,
		}
		if seg.Limit > 0 {
			segment.ByteRange = &models.ByteRange{Length: seg.Limit, Offset: seg.Offset}
		}
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		return nil, &models.ParseError{Kind: models.ParseMalformed, Err: fmt.Errorf("media playlist contains no segments")}
	}

	targetDuration := media.TargetDuration
	if targetDuration == 0 {
		for _, seg := range segments {
			if seg.Duration > targetDuration {
				targetDuration = seg.Duration
			}
		}
	}

	return &Result{
		Media: &models.Manifest{
			Segments:       segments,
			TargetDuration: targetDuration,
		},
	}, nil
}

func resolveURI(base *url.URL, uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", &models.ParseError{Kind: models.ParseMalformed, Err: fmt.Errorf("invalid segment URI %q: %w", uri, err)}
	}
	return base.ResolveReference(ref).String(), nil
}
