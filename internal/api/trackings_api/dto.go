package trackings_api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/pkg/errors"
)

const maxBodyBytes = 20 << 20

type createRequest struct {
	ID                 string `json:"id"`
	DocumentReference  string `json:"documentReference"`
	OverallStatus      string `json:"overallStatus"`
	PublicTrackingLink string `json:"publicTrackingLink"`
}

type stepRequest struct {
	Completed bool   `json:"completed"`
	Active    bool   `json:"active"`
	Comment   string `json:"comment"`
}

type commentRequest struct {
	ID         string     `json:"id"`
	AuthorName string     `json:"authorName"`
	Text       string     `json:"text"`
	Timestamp  *time.Time `json:"timestamp"`
}

// artifactRequest — либо url, либо data (base64 или data URL).
type artifactRequest struct {
	URL         string `json:"url"`
	Data        string `json:"data"`
	ContentType string `json:"contentType"`
}

type deliveryRequest struct {
	ConfirmedBy string            `json:"confirmedBy"`
	ConfirmedAt *time.Time        `json:"confirmedAt"`
	Photos      []artifactRequest `json:"photos"`
	Signature   *artifactRequest  `json:"signature"`
}

type listResponse struct {
	Trackings []*models.TrackingRecord `json:"trackings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeBody treats an empty body as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.Wrapf(errBodyTooLarge, "limit is %d bytes", tooLarge.Limit)
	}
	return errors.Wrap(trackings.ErrInvalidInput, "malformed JSON body")
}

func (d deliveryRequest) toInput() (trackings.DeliveryInput, error) {
	in := trackings.DeliveryInput{ConfirmedBy: d.ConfirmedBy}
	if d.ConfirmedAt != nil {
		in.ConfirmedAt = d.ConfirmedAt.UTC()
	}
	for i, p := range d.Photos {
		a, err := p.toArtifact()
		if err != nil {
			return in, errors.Wrapf(err, "photos[%d]", i)
		}
		in.Photos = append(in.Photos, a)
	}
	if d.Signature != nil {
		a, err := d.Signature.toArtifact()
		if err != nil {
			return in, errors.Wrap(err, "signature")
		}
		if !a.Empty() {
			in.Signature = &a
		}
	}
	return in, nil
}

func (a artifactRequest) toArtifact() (evidence.Artifact, error) {
	out := evidence.Artifact{URL: strings.TrimSpace(a.URL), ContentType: a.ContentType}
	data := strings.TrimSpace(a.Data)
	if out.URL != "" || data == "" {
		return out, nil
	}

	if strings.HasPrefix(data, "data:") {
		meta, payload, ok := strings.Cut(strings.TrimPrefix(data, "data:"), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return out, errors.Wrap(trackings.ErrInvalidInput, "unsupported data URL")
		}
		if out.ContentType == "" {
			out.ContentType = strings.TrimSuffix(meta, ";base64")
		}
		data = payload
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return out, errors.Wrap(trackings.ErrInvalidInput, "data is not valid base64")
	}
	out.Data = b
	return out, nil
}

func parseListFilter(q url.Values) (trackings.ListFilter, error) {
	f := trackings.ListFilter{Status: q.Get("status")}
	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, errors.Wrap(trackings.ErrInvalidInput, "limit must be an integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			return f, errors.Wrap(trackings.ErrInvalidInput, "offset must be an integer")
		}
	}
	return f, nil
}
