// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/AleutianAI/netfab/pkg/activation"
	"github.com/AleutianAI/netfab/pkg/evaluate"
	"github.com/AleutianAI/netfab/pkg/expr"
	"github.com/AleutianAI/netfab/pkg/fabricate"
	"github.com/AleutianAI/netfab/pkg/netfile"
	"github.com/AleutianAI/netfab/pkg/network"
	"github.com/AleutianAI/netfab/services/fabd/storage"
	"github.com/gin-gonic/gin"
)

// Handlers contains the HTTP handlers for fabd.
type Handlers struct {
	svc          *Service
	maxBodyBytes int64
}

// NewHandlers creates handlers for svc. Request bodies larger than
// maxBodyBytes are rejected; values < 1 disable the limit.
func NewHandlers(svc *Service, maxBodyBytes int64) *Handlers {
	return &Handlers{svc: svc, maxBodyBytes: maxBodyBytes}
}

// HandleHealth handles GET /v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Cache:   h.svc.CacheStats(),
	})
}

// HandleList handles GET /v1/networks.
func (h *Handlers) HandleList(c *gin.Context) {
	infos, err := h.svc.ListNetworks(c.Request.Context())
	if err != nil {
		h.fail(c, "HandleList", err)
		return
	}
	if infos == nil {
		infos = []NetworkInfo{}
	}
	c.JSON(http.StatusOK, ListResponse{Networks: infos})
}

// HandlePut handles PUT /v1/networks/:name.
//
// Description:
//
//	Stores the request body as the network's document. The format comes
//	from the "format" query parameter, else from the Content-Type
//	(application/yaml or application/hcl), else YAML.
//
// Response:
//
//	200 OK: NetworkInfo
//	400 Bad Request: Unparseable document or malformed network
//	413 Request Entity Too Large: Body exceeds the configured limit
func (h *Handlers) HandlePut(c *gin.Context) {
	name := c.Param("name")

	format, err := requestFormat(c)
	if err != nil {
		h.fail(c, "HandlePut", err)
		return
	}
	body, err := h.readBody(c)
	if err != nil {
		h.fail(c, "HandlePut", err)
		return
	}

	info, err := h.svc.PutNetwork(c.Request.Context(), name, format, body)
	if err != nil {
		h.fail(c, "HandlePut", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// HandleGet handles GET /v1/networks/:name.
func (h *Handlers) HandleGet(c *gin.Context) {
	rec, err := h.svc.GetNetwork(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, "HandleGet", err)
		return
	}
	c.Header("ETag", strconv.Quote(strconv.FormatUint(rec.Revision, 10)))
	c.JSON(http.StatusOK, NetworkResponse{NetworkInfo: infoOf(rec), Document: string(rec.Body)})
}

// HandleDelete handles DELETE /v1/networks/:name.
func (h *Handlers) HandleDelete(c *gin.Context) {
	if err := h.svc.DeleteNetwork(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, "HandleDelete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandlePlan handles GET /v1/networks/:name/plan.
//
// Response:
//
//	200 OK: PlanDescription
//	404 Not Found: No such network
//	422 Unprocessable Entity: The network contains a cycle
func (h *Handlers) HandlePlan(c *gin.Context) {
	desc, err := h.svc.Describe(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, "HandlePlan", err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

// HandleEvaluate handles POST /v1/networks/:name/evaluate.
//
// Response:
//
//	200 OK: EvaluateResponse
//	400 Bad Request: Invalid body or wrong number of inputs
//	404 Not Found: No such network
//	422 Unprocessable Entity: Cyclic network, a node function failed, or
//	                          an output is NaN or ±Inf
func (h *Handlers) HandleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if !h.bind(c, "HandleEvaluate", &req) {
		return
	}
	resp, err := h.svc.Evaluate(c.Request.Context(), c.Param("name"), req.Inputs)
	if err != nil {
		h.fail(c, "HandleEvaluate", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleEvaluateBatch handles POST /v1/networks/:name/evaluate/batch.
//
// Response:
//
//	200 OK: BatchResponse
//	400 Bad Request: Invalid body, empty batch, or a row with the wrong
//	                 number of inputs (the message names the row)
//	413 Request Entity Too Large: More rows than the configured limit
//	422 Unprocessable Entity: As for HandleEvaluate, naming the row
func (h *Handlers) HandleEvaluateBatch(c *gin.Context) {
	var req BatchRequest
	if !h.bind(c, "HandleEvaluateBatch", &req) {
		return
	}
	resp, err := h.svc.EvaluateBatch(c.Request.Context(), c.Param("name"), req.Rows)
	if err != nil {
		h.fail(c, "HandleEvaluateBatch", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) readBody(c *gin.Context) ([]byte, error) {
	r := c.Request.Body
	if h.maxBodyBytes > 0 {
		r = http.MaxBytesReader(c.Writer, r, h.maxBodyBytes)
	}
	return io.ReadAll(r)
}

func (h *Handlers) bind(c *gin.Context, handler string, dst any) bool {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, handler, err)
			return false
		}
		requestLogger(c, handler).Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return false
	}
	return true
}

// fail writes the error response for err and logs it.
func (h *Handlers) fail(c *gin.Context, handler string, err error) {
	status, code := classifyError(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var malformed *network.MalformedGraphError
	if errors.As(err, &malformed) {
		for _, issue := range malformed.Issues {
			resp.Details = append(resp.Details, issue.Error())
		}
	}

	logger := requestLogger(c, handler)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", slog.String("error", err.Error()), slog.String("code", code))
	} else {
		logger.Info("Request rejected", slog.String("error", err.Error()), slog.String("code", code))
	}
	c.JSON(status, resp)
}

// classifyError maps service errors to an HTTP status and error code.
func classifyError(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	var malformed *network.MalformedGraphError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest, "INVALID_NAME"
	case errors.As(err, &malformed):
		return http.StatusBadRequest, "MALFORMED_GRAPH"
	case errors.Is(err, netfile.ErrUnknownFormat):
		return http.StatusBadRequest, "UNKNOWN_FORMAT"
	case errors.Is(err, netfile.ErrUnsupportedVersion):
		return http.StatusBadRequest, "UNSUPPORTED_VERSION"
	case errors.Is(err, netfile.ErrParse),
		errors.Is(err, netfile.ErrInvalidDocument),
		errors.Is(err, activation.ErrUnknownFunction),
		errors.Is(err, network.ErrInvalidRole),
		errors.Is(err, expr.ErrEmptyExpression),
		errors.Is(err, expr.ErrCompile):
		return http.StatusBadRequest, "INVALID_DOCUMENT"
	case errors.Is(err, fabricate.ErrCyclic):
		return http.StatusUnprocessableEntity, "CYCLIC_GRAPH"
	case errors.Is(err, evaluate.ErrArityMismatch):
		return http.StatusBadRequest, "ARITY_MISMATCH"
	case errors.Is(err, evaluate.ErrFunctionFailed):
		return http.StatusUnprocessableEntity, "FUNCTION_FAILED"
	case errors.Is(err, ErrNonFiniteOutput):
		return http.StatusUnprocessableEntity, "NON_FINITE_OUTPUT"
	case errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest, "EMPTY_BATCH"
	case errors.Is(err, ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// requestFormat picks the document format of a PUT request.
func requestFormat(c *gin.Context) (netfile.Format, error) {
	if f := c.Query("format"); f != "" {
		return netfile.ParseFormat(f)
	}
	ct := c.GetHeader("Content-Type")
	if ct == "" {
		return netfile.FormatYAML, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return netfile.FormatYAML, nil
	}
	switch mediaType {
	case "application/hcl", "text/hcl", "application/x-hcl", "text/x-hcl":
		return netfile.FormatHCL, nil
	default:
		return netfile.FormatYAML, nil
	}
}
