package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/domain/events"
	"github.com/Togather-Foundation/eventdesk/internal/media"
	"github.com/Togather-Foundation/eventdesk/internal/validation"
)

var errMalformedBody = errors.New("malformed request body")

// maxFieldBytes bounds a single non-file multipart field.
const maxFieldBytes = 64 << 10

const bannerField = "banner"

// eventPayload is the JSON shape of create and update requests. Pointer
// fields distinguish absent from empty.
type eventPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Banner      *string `json:"banner"`
}

// decodedEvent is the canonical request after normalization. BannerFile is
// the generated name of an uploaded banner, empty when none was uploaded.
type decodedEvent struct {
	Input      events.Input
	BannerFile string
}

// decodeEventInput normalizes JSON, urlencoded and multipart bodies into one
// shape. A multipart banner file is ingested while the stream is read.
func decodeEventInput(r *http.Request, ingestor *media.Ingestor) (decodedEvent, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		return decodeMultipart(r, ingestor)
	case mediaType == "application/x-www-form-urlencoded":
		return decodeForm(r)
	default:
		return decodeJSON(r)
	}
}

func decodeJSON(r *http.Request) (decodedEvent, error) {
	var payload eventPayload
	if err := decodeBody(r, &payload); err != nil {
		return decodedEvent{}, err
	}

	input := events.Input{
		Title:       payload.Title,
		Description: payload.Description,
		Banner:      payload.Banner,
	}
	if payload.Date != nil {
		date, err := parseDate(*payload.Date)
		if err != nil {
			return decodedEvent{}, err
		}
		input.Date = &date
	}
	return decodedEvent{Input: input}, nil
}

func decodeForm(r *http.Request) (decodedEvent, error) {
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return decodedEvent{}, err
		}
		return decodedEvent{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if len(r.PostForm) == 0 {
		return decodedEvent{}, ErrMissingBody
	}
	var out decodedEvent
	for name, values := range r.PostForm {
		if len(values) == 0 {
			continue
		}
		if err := setField(&out.Input, name, values[0]); err != nil {
			return decodedEvent{}, err
		}
	}
	return out, nil
}

func decodeMultipart(r *http.Request, ingestor *media.Ingestor) (out decodedEvent, err error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return decodedEvent{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}

	// an upload that was stored before a later part failed is removed again
	defer func() {
		if err != nil {
			discardBanner(r, ingestor, out.BannerFile)
			out = decodedEvent{}
		}
	}()

	fields := 0
	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			return out, multipartError(perr)
		}

		name := part.FormName()
		if isFilePart(part.Header.Get("Content-Disposition")) {
			if name != bannerField || out.BannerFile != "" || part.FileName() == "" {
				// unnamed or extra file parts are drained and ignored
				_, _ = io.Copy(io.Discard, part)
				_ = part.Close()
				continue
			}
			fields++
			stored, ierr := ingestor.Ingest(r.Context(), media.Upload{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        part,
			})
			_ = part.Close()
			if ierr != nil {
				return out, multipartError(ierr)
			}
			out.BannerFile = stored
			continue
		}

		value, rerr := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		_ = part.Close()
		if rerr != nil {
			return out, multipartError(rerr)
		}
		if len(value) > maxFieldBytes {
			return out, validation.Error{Field: name, Message: fmt.Sprintf("must be at most %d bytes", maxFieldBytes)}
		}
		fields++
		if serr := setField(&out.Input, name, string(value)); serr != nil {
			return out, serr
		}
	}

	if fields == 0 {
		return out, ErrMissingBody
	}
	return out, nil
}

// multipartError reports an oversized multipart body as an oversized banner.
func multipartError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return media.ErrTooLarge
	}
	if errors.Is(err, media.ErrTooLarge) || errors.Is(err, media.ErrUnsupportedType) {
		return err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return err
}

func isFilePart(disposition string) bool {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func setField(input *events.Input, name, value string) error {
	switch name {
	case "title":
		input.Title = &value
	case "description":
		input.Description = &value
	case "date":
		date, err := parseDate(value)
		if err != nil {
			return err
		}
		input.Date = &date
	case bannerField:
		input.Banner = &value
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// parseDate accepts RFC 3339 timestamps; values without a zone are UTC.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validation.Error{Field: "date", Message: "must be an RFC 3339 date-time"}
}

func discardBanner(r *http.Request, ingestor *media.Ingestor, name string) {
	if name == "" || ingestor == nil {
		return
	}
	if err := ingestor.Store().Delete(r.Context(), name); err != nil {
		loggerFrom(r).Warn().Err(err).Str("banner", name).Msg("failed to remove orphaned banner")
	}
}
