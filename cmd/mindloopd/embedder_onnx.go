//go:build onnx

package main

import (
	"github.com/mindloop/mindloop/config"
	"github.com/mindloop/mindloop/index/embed"
)

func newONNXEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	return embed.NewONNX(embed.ONNXConfig{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		RuntimePath:   cfg.RuntimePath,
		Dimensions:    cfg.Dimensions,
	})
}
