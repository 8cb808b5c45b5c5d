package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"permde/domain/core"
	"permde/domain/expression"
	"permde/internal"
	"permde/internal/difftest"
	"permde/internal/errors"
)

// EntryJSON is one non-zero matrix cell.
type EntryJSON struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Value float64 `json:"value"`
}

// DiffMeanRequest carries a sparse matrix and either boolean group labels or
// class names plus the class to test against the rest.
type DiffMeanRequest struct {
	Features     int              `json:"features"`
	Observations int              `json:"observations"`
	Entries      []EntryJSON      `json:"entries"`
	FeatureIDs   []core.FeatureID `json:"feature_ids,omitempty"`
	Labels       []bool           `json:"labels,omitempty"`
	Classes      []core.ClassName `json:"classes,omitempty"`
	Class        core.ClassName   `json:"class,omitempty"`
	Config       json.RawMessage  `json:"config,omitempty"`
}

// DiffMeanResponse wraps the result table.
type DiffMeanResponse struct {
	Tested int                     `json:"tested"`
	Table  *expression.ResultTable `json:"table"`
}

// TestHandler handles differential-mean test requests.
type TestHandler struct {
	tester *difftest.Tester
	opts   Options
	logger *internal.Logger
}

// NewTestHandler creates a new handler.
func NewTestHandler(tester *difftest.Tester, opts Options, logger *internal.Logger) *TestHandler {
	return &TestHandler{tester: tester, opts: opts, logger: logger}
}

// GetOptions returns the recognised option names and the server defaults.
func (h *TestHandler) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"options":  difftest.OptionNames(),
		"defaults": h.opts.Defaults,
	})
}

// PostDiffMeanTest runs one test synchronously.
func (h *TestHandler) PostDiffMeanTest(c *gin.Context) {
	var req DiffMeanRequest

	body := c.Request.Body
	if h.opts.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.opts.MaxBodyBytes)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, errors.InvalidInput(err.Error()))
			return
		}
		writeError(c, http.StatusBadRequest, errors.InvalidInput(fmt.Sprintf("malformed request: %v", err)))
		return
	}
	if dec.More() {
		writeError(c, http.StatusBadRequest, errors.InvalidInput("request body holds more than one JSON value"))
		return
	}

	cfg, err := req.config(h.opts.Defaults)
	if err != nil {
		h.fail(c, err)
		return
	}
	m, labels, err := req.build()
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	table, err := h.tester.Run(ctx, m, labels, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DiffMeanResponse{Tested: table.Tested(), Table: table})
}

// config overlays the request options on defaults. Keys that name no option
// are configuration errors, not malformed input.
func (r DiffMeanRequest) config(defaults difftest.Config) (difftest.Config, error) {
	cfg := defaults
	if len(r.Config) == 0 {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Config))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field ") {
			return cfg, fmt.Errorf("%w: %s", core.ErrUnknownOption, strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return cfg, core.NewConfigurationError("config", err.Error())
	}
	return cfg, nil
}

func (r DiffMeanRequest) build() (*expression.CountMatrix, expression.GroupLabels, error) {
	entries := make([]expression.Entry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = expression.Entry{Row: e.Row, Col: e.Col, Value: e.Value}
	}
	var ids []core.FeatureID
	if len(r.FeatureIDs) > 0 {
		ids = r.FeatureIDs
	}
	m, err := expression.NewCountMatrix(r.Features, r.Observations, entries, ids)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case len(r.Labels) > 0 && len(r.Classes) > 0:
		return nil, nil, core.NewConfigurationError("labels", "give either labels or classes, not both")
	case len(r.Labels) > 0:
		return m, expression.GroupLabels(r.Labels), nil
	case len(r.Classes) > 0:
		if r.Class == "" {
			return nil, nil, core.NewConfigurationError("class", "required with classes")
		}
		if len(r.Classes) != m.Observations() {
			return nil, nil, core.NewLabelLengthError(len(r.Classes), m.Observations())
		}
		labels, err := expression.ClassLabels(r.Classes).OneVsRest(r.Class)
		return m, labels, err
	default:
		return nil, nil, core.NewConfigurationError("labels", "labels or classes are required")
	}
}

func (h *TestHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case stderrors.Is(err, context.Canceled):
		// client went away
		status = 499
	case errors.Classify(err) != errors.CodeInternalError:
		status = http.StatusBadRequest
	default:
		h.logger.Error("diff-mean-test failed: %v", err)
	}
	writeError(c, status, err)
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
