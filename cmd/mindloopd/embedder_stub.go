//go:build !onnx

package main

import (
	"fmt"

	"github.com/mindloop/mindloop/config"
	"github.com/mindloop/mindloop/index/embed"
)

func newONNXEmbedder(config.EmbeddingConfig) (embed.Embedder, error) {
	return nil, fmt.Errorf("embedding provider onnx requires a binary built with the onnx tag")
}
