package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// decodeJSON reads a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", core.ErrInvalidInput)
		}
		if errors.Is(err, core.ErrInvalidAmount) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", core.ErrInvalidInput)
	}
	return nil
}

// pathIndex parses the {index} path value.
func pathIndex(r *http.Request) (int, error) {
	raw := r.PathValue("index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q is not a number", core.ErrInvalidInput, raw)
	}
	return i, nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// recordRequest is the body of record creation and patch requests. Absent
// fields are left untouched by a patch.
type recordRequest struct {
	Amount   *core.Money `json:"amount"`
	Category *string     `json:"type"`
	Date     *string     `json:"date"`
	Remark   *string     `json:"remark"`
}

func (req recordRequest) patch() core.RecordPatch {
	return core.RecordPatch{
		Amount:   req.Amount,
		Category: sanitizePtr(req.Category),
		Date:     sanitizePtr(req.Date),
		Remark:   sanitizePtr(req.Remark),
	}
}

func (req recordRequest) validateNew() error {
	if req.Amount == nil {
		return fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	if req.Category == nil || sanitizeInput(*req.Category) == "" {
		return core.ErrEmptyCategory
	}
	return nil
}

type budgetRequest struct {
	Budget *core.Money `json:"budget"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
