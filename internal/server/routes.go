package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/fracpack/internal/auth"
	"github.com/danmuck/fracpack/internal/compat"
	"github.com/danmuck/fracpack/internal/compiled"
	"github.com/danmuck/fracpack/internal/fracjson"
	"github.com/danmuck/fracpack/internal/observability"
	"github.com/danmuck/fracpack/internal/registry"
	"github.com/danmuck/fracpack/internal/schema"
)

const octetStream = "application/octet-stream"

var (
	ErrSchemaNotFound = errors.New("schema not found")
	ErrTypeNotFound   = errors.New("type not found")
	ErrBadVersion     = errors.New("bad version")
)

func (s *Server) RegisterRoutes() {
	routes := s.router
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": version,
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": version,
		})
	})

	routes.GET("/schemas", s.listSchemas)
	routes.GET("/schemas/:name", s.getSchema)
	routes.PUT("/schemas/:name", s.requireWriter, s.putSchema)
	routes.POST("/schemas/:name/compat", s.checkSchema)
	routes.POST("/schemas/:name/types/:type/pack", s.pack)
	routes.POST("/schemas/:name/types/:type/unpack", s.unpack)
	routes.POST("/schemas/:name/types/:type/verify", s.verify)
}

type SchemaInfo struct {
	Name        string `json:"name"`
	Versions    int    `json:"versions"`
	Fingerprint string `json:"fingerprint"`
	Types       int    `json:"types"`
}

func (s *Server) listSchemas(c *gin.Context) {
	names := s.Registry.Names()
	list := make([]SchemaInfo, 0, len(names))
	for _, name := range names {
		e, ok := s.Registry.Latest(name)
		if !ok {
			continue
		}
		list = append(list, SchemaInfo{
			Name:        name,
			Versions:    e.Version,
			Fingerprint: hex.EncodeToString(e.Fingerprint[:]),
			Types:       e.Schema.Len(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"schemas": list})
}

func entryJSON(e *registry.Entry) gin.H {
	return gin.H{
		"name":        e.Name,
		"version":     e.Version,
		"fingerprint": hex.EncodeToString(e.Fingerprint[:]),
		"difference":  e.Diff.String(),
		"created":     e.Created,
		"schema":      e.Schema,
	}
}

func (s *Server) getSchema(c *gin.Context) {
	e, err := s.entry(c)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entryJSON(e))
}

func (s *Server) putSchema(c *gin.Context) {
	name := c.Param("name")
	candidate, err := s.readSchema(c)
	if err != nil {
		fail(c, err)
		return
	}
	before, _ := s.Registry.Latest(name)
	e, err := s.Registry.Register(name, candidate)
	if err != nil {
		var incompatible *registry.IncompatibleError
		if !errors.As(err, &incompatible) {
			err = badRequest(err)
		}
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if e == before {
		status = http.StatusOK
	}
	log.Info().Str("schema", name).Int("version", e.Version).Str("difference", e.Diff.String()).Msg("schema registered")
	c.JSON(status, entryJSON(e))
}

func (s *Server) checkSchema(c *gin.Context) {
	name := c.Param("name")
	candidate, err := s.readSchema(c)
	if err != nil {
		fail(c, err)
		return
	}
	latest, ok := s.Registry.Latest(name)
	if !ok {
		fail(c, ErrSchemaNotFound)
		return
	}
	diff, reason := compat.Explain(latest.Schema, candidate)
	c.JSON(http.StatusOK, gin.H{
		"name":       name,
		"version":    latest.Version,
		"difference": diff.String(),
		"allowed":    s.Registry.Policy().String(),
		"compatible": diff != compat.Incompatible && diff.Within(s.Registry.Policy()),
		"reason":     reason,
	})
}

func (s *Server) pack(c *gin.Context) {
	e, id, err := s.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	body, err := s.readBody(c)
	if err != nil {
		fail(c, err)
		return
	}
	value, err := fracjson.Parse(body)
	if err != nil {
		fail(c, badRequest(err))
		return
	}
	data, err := e.Converter().Encode(id, value)
	observability.RecordCodec(e.Name, "pack", len(data), err)
	if err != nil {
		fail(c, unprocessable(err))
		return
	}
	if strings.Contains(c.GetHeader("Accept"), octetStream) {
		c.Data(http.StatusOK, octetStream, data)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hex": strings.ToUpper(hex.EncodeToString(data))})
}

func (s *Server) unpack(c *gin.Context) {
	e, id, err := s.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := s.readPayload(c)
	if err != nil {
		fail(c, err)
		return
	}
	conv := e.Converter()
	decode := conv.Decode
	if s.strict(c) {
		decode = conv.DecodeStrict
	}
	value, err := decode(id, data)
	observability.RecordCodec(e.Name, "unpack", len(data), err)
	if err != nil {
		fail(c, unprocessable(err))
		return
	}
	text, err := json.Marshal(value)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", text)
}

func (s *Server) verify(c *gin.Context) {
	e, id, err := s.target(c)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := s.readPayload(c)
	if err != nil {
		fail(c, err)
		return
	}
	strict := s.strict(c)
	conv := e.Converter()
	if strict {
		err = conv.VerifyStrict(id, data)
	} else {
		err = conv.Verify(id, data)
	}
	observability.RecordCodec(e.Name, "verify", len(data), err)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "strict": strict, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "strict": strict})
}

// requireWriter rejects registry writes without an accepted bearer token
// when admin tokens are configured.
func (s *Server) requireWriter(c *gin.Context) {
	if s.writers == nil {
		c.Next()
		return
	}
	if err := auth.Authorize(s.writers, c.GetHeader("Authorization")); err != nil {
		log.Warn().Str("schema", c.Param("name")).Err(err).Msg("registry write denied")
		fail(c, err)
		c.Abort()
		return
	}
	c.Next()
}

// entry resolves :name and the optional ?version= query.
func (s *Server) entry(c *gin.Context) (*registry.Entry, error) {
	name := c.Param("name")
	if v := c.Query("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, badRequest(ErrBadVersion)
		}
		e, ok := s.Registry.Version(name, n)
		if !ok {
			return nil, ErrSchemaNotFound
		}
		return e, nil
	}
	e, ok := s.Registry.Latest(name)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	return e, nil
}

func (s *Server) target(c *gin.Context) (*registry.Entry, compiled.TypeID, error) {
	e, err := s.entry(c)
	if err != nil {
		return nil, 0, err
	}
	id, ok := e.Compiled.Lookup(c.Param("type"))
	if !ok {
		return nil, 0, ErrTypeNotFound
	}
	return e, id, nil
}

func (s *Server) strict(c *gin.Context) bool {
	if v := c.Query("strict"); v != "" {
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return s.Strict
}

func (s *Server) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, statusError{http.StatusRequestEntityTooLarge, err}
		}
		return nil, badRequest(err)
	}
	return body, nil
}

// readPayload accepts raw bytes as application/octet-stream or a JSON body
// of the form {"hex": "..."}.
func (s *Server) readPayload(c *gin.Context) ([]byte, error) {
	body, err := s.readBody(c)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(c.ContentType(), octetStream) {
		return body, nil
	}
	var req struct {
		Hex string `json:"hex"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, badRequest(err)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(req.Hex, "0x"))
	if err != nil {
		return nil, badRequest(err)
	}
	return data, nil
}

func (s *Server) readSchema(c *gin.Context) (*schema.Schema, error) {
	body, err := s.readBody(c)
	if err != nil {
		return nil, err
	}
	format := schema.FormatJSON
	switch ct := c.ContentType(); {
	case strings.Contains(ct, "yaml"):
		format = schema.FormatYAML
	case strings.Contains(ct, "jsonc"):
		format = schema.FormatJSONC
	}
	parsed, err := schema.Parse(body, format)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := parsed.Validate(); err != nil {
		return nil, badRequest(err)
	}
	return parsed, nil
}
