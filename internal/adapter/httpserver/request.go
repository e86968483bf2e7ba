package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New(validator.WithRequiredStructEnabled())
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// decodeJSON reads a size-capped JSON body into dst and validates its struct tags.
// On failure it returns an ErrInvalidArgument error and per-field details.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrInvalidArgument, mbe.Limit)
		}
		return nil, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		details := make(map[string]string, len(ve))
		for _, fe := range ve {
			details[fieldPath(fe.Namespace())] = fe.Tag()
		}
		return details, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

type resumeIDRequest struct {
	ResumeID string `json:"resumeId" validate:"required"`
}

type evaluationIDRequest struct {
	EvaluationID string `json:"evaluationId" validate:"required"`
}

type checkResumeRequest struct {
	ResumeID string          `json:"resumeId" validate:"required"`
	Criteria domain.Criteria `json:"criteria"`
}

type bulkEvaluateRequest struct {
	ResumeIDs []string        `json:"resumeIds" validate:"required,min=1,dive,required"`
	Criteria  domain.Criteria `json:"criteria"`
}
