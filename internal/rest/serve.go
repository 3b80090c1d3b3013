// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest serves the destriping pipelines over HTTP. Responses stream
// the processing log as plain text.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	ds "github.com/mlnoga/destripe/internal/destripe"
	"github.com/mlnoga/destripe/internal/mosaic"
	"github.com/mlnoga/destripe/internal/ops"
	opsds "github.com/mlnoga/destripe/internal/ops/destripe"
	"github.com/mlnoga/destripe/internal/pca"
)

// Server settings shared by all requests
type Server struct {
	Addr       string    // listen address, e.g. ":8080"
	MaxThreads int       // concurrency limit per request
	Store      pca.Store // eigen-system cache shared across requests
	Sandboxed  bool      // restrict file access to relative paths below the working directory
}

// Serves the API until the listener fails
func (s *Server) Serve() error {
	return s.Router().Run(s.Addr)
}

// Returns the request router
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/destripe", s.postDestripe)
			v1.POST("/multitile", s.postMultiTile)
			v1.POST("/job", s.postJob)
		}
	}
	return r
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes log writes of concurrent workers onto the response, flushing
// after each write
type streamWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (s *streamWriter) Write(p []byte) (n int, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n, err = s.w.Write(p)
	s.w.Flush()
	return n, err
}

// Starts a plain text response and returns an operator context logging into it
func (s *Server) startStream(c *gin.Context) *ops.Context {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)

	ctx := ops.NewContext(&streamWriter{w: c.Writer})
	if s.MaxThreads > 0 {
		ctx.MaxThreads = s.MaxThreads
	}
	if s.Store != nil {
		ctx.Store = s.Store
	}
	ctx.Sandboxed = s.Sandboxed
	return ctx
}

// Runs an operator tree, logging errors into the response
func run(op ops.Operator, ctx *ops.Context) {
	if _, err := ops.RunBatch(op, ctx); err != nil {
		fmt.Fprintf(ctx.Log, "error: %s\n", err.Error())
	}
}

type postDestripeArgs struct {
	FilePatterns []string   `json:"filePatterns"`
	Destripe     *ds.Params `json:"destripe"`
	Out          string     `json:"out"`
	WriteNoise   bool       `json:"writeNoise"`
}

func (s *Server) postDestripe(c *gin.Context) {
	args := postDestripeArgs{Destripe: ds.DefaultParams()}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Destripe == nil {
		args.Destripe = ds.DefaultParams()
	}
	if err := args.Destripe.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := s.startStream(c)
	if err := printArgs(ctx.Log, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(ctx.Log, "Error printing arguments: %s\n", err.Error())
		return
	}
	run(ops.NewOpSequence(
		ops.NewOpLoadMany(args.FilePatterns),
		opsds.NewOpDestripe(args.Destripe),
		ops.NewOpSave(args.Out, args.WriteNoise),
	), ctx)
}

type postMultiTileArgs struct {
	FilePatterns []string       `json:"filePatterns"`
	MultiTile    *mosaic.Params `json:"multiTile"`
	Out          string         `json:"out"`
	WriteNoise   bool           `json:"writeNoise"`
}

func (s *Server) postMultiTile(c *gin.Context) {
	args := postMultiTileArgs{MultiTile: mosaic.DefaultParams()}
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.MultiTile == nil {
		args.MultiTile = mosaic.DefaultParams()
	}
	if err := args.MultiTile.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := s.startStream(c)
	if err := printArgs(ctx.Log, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(ctx.Log, "Error printing arguments: %s\n", err.Error())
		return
	}
	run(ops.NewOpSequence(
		ops.NewOpLoadMany(args.FilePatterns),
		opsds.NewOpMultiTile(args.MultiTile),
		ops.NewOpSave(args.Out, args.WriteNoise),
	), ctx)
}

// Runs an operator tree posted as JSON, or as YAML with a yaml content type
func (s *Server) postJob(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format := "json"
	if strings.Contains(c.ContentType(), "yaml") {
		format = "yaml"
	}
	op, err := ops.UnmarshalJob(body, format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := s.startStream(c)
	run(op, ctx)
}
