package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type seriesQuery struct {
	Status string `validate:"omitempty,oneof=on-going completed"`
	Query  string `validate:"max=200"`
	Limit  int    `validate:"min=1,max=100"`
	Offset int    `validate:"min=0"`
}

type episodesQuery struct {
	Order  string `validate:"oneof=asc desc"`
	Limit  int    `validate:"min=1,max=200"`
	Offset int    `validate:"min=0"`
}

type mirrorsQuery struct {
	Quality  string `validate:"max=50"`
	Provider string `validate:"max=100"`
	Limit    int    `validate:"min=1,max=200"`
	Offset   int    `validate:"min=0"`
}

func parseSeriesQuery(r *http.Request) (seriesQuery, error) {
	q := r.URL.Query()
	out := seriesQuery{
		Status: strings.TrimSpace(q.Get("status")),
		Query:  strings.TrimSpace(q.Get("q")),
	}
	var err error
	if out.Limit, err = intParam(r, "limit", 20); err != nil {
		return out, err
	}
	if out.Offset, err = intParam(r, "offset", 0); err != nil {
		return out, err
	}
	return out, check(out)
}

func parseEpisodesQuery(r *http.Request) (episodesQuery, error) {
	out := episodesQuery{Order: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("order")))}
	if out.Order == "" {
		out.Order = "asc"
	}
	var err error
	if out.Limit, err = intParam(r, "limit", 50); err != nil {
		return out, err
	}
	if out.Offset, err = intParam(r, "offset", 0); err != nil {
		return out, err
	}
	return out, check(out)
}

func parseMirrorsQuery(r *http.Request) (mirrorsQuery, error) {
	q := r.URL.Query()
	out := mirrorsQuery{
		Quality:  strings.TrimSpace(q.Get("quality")),
		Provider: strings.TrimSpace(q.Get("provider")),
	}
	var err error
	if out.Limit, err = intParam(r, "limit", 50); err != nil {
		return out, err
	}
	if out.Offset, err = intParam(r, "offset", 0); err != nil {
		return out, err
	}
	return out, check(out)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// check turns validator failures into a single readable message.
func check(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	if name == "query" {
		name = "q"
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}
