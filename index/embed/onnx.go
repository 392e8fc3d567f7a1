//go:build onnx

package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures the local embedding model.
type ONNXConfig struct {
	// ModelPath is the path to the ONNX model file (e.g. all-MiniLM-L6-v2).
	ModelPath string

	// TokenizerPath is the path to the matching tokenizer.json.
	TokenizerPath string

	// RuntimePath is the path to the onnxruntime shared library.
	RuntimePath string

	// Dimensions is the embedding size. Default: 384.
	Dimensions int
}

// ONNX embeds text with a local sentence-transformer model. It exists so the
// document index can run fully offline; the remote embedder is the default.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	vocab      *wordPieceVocab
	dimensions int
}

const (
	seqLen   = 128
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// NewONNX loads the model and tokenizer and prepares an inference session.
func NewONNX(cfg ONNXConfig) (*ONNX, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	if cfg.RuntimePath != "" {
		ort.SetSharedLibraryPath(cfg.RuntimePath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	vocab, err := loadWordPieceVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNX{session: session, vocab: vocab, dimensions: cfg.Dimensions}, nil
}

// Embed tokenizes the text, runs inference, and mean-pools the hidden states.
func (e *ONNX) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := e.vocab.tokenize(text)
	if len(tokens) > seqLen-2 {
		tokens = tokens[:seqLen-2]
	}

	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	tokenTypes := make([]int64, seqLen)

	inputIDs[0] = clsToken
	attention[0] = 1
	for i, tok := range tokens {
		inputIDs[i+1] = tok
		attention[i+1] = 1
	}
	inputIDs[len(tokens)+1] = sepToken
	attention[len(tokens)+1] = 1

	shape := ort.NewShape(1, seqLen)
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor(shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typesTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx inference returned no output")
	}

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return e.pool(hidden, attention)
}

// pool mean-pools attended positions of [1, seq, hidden] into one vector.
func (e *ONNX) pool(hidden *ort.Tensor[float32], attention []int64) ([]float32, error) {
	data := hidden.GetData()
	shape := hidden.GetShape()

	if len(shape) == 2 {
		// Model already pooled.
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("output dimension mismatch: got %d, want %d", len(data), e.dimensions)
		}
		vec := make([]float32, e.dimensions)
		copy(vec, data[:e.dimensions])
		return normalize(vec), nil
	}
	if len(shape) != 3 || shape[0] != 1 || shape[2] != int64(e.dimensions) {
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}

	vec := make([]float32, e.dimensions)
	var attended float32
	for i := 0; i < int(shape[1]); i++ {
		if attention[i] == 0 {
			continue
		}
		attended++
		offset := i * e.dimensions
		for j := 0; j < e.dimensions; j++ {
			vec[j] += data[offset+j]
		}
	}
	if attended == 0 {
		return nil, fmt.Errorf("no attended tokens")
	}
	for j := range vec {
		vec[j] /= attended
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *ONNX) Dimensions() int {
	return e.dimensions
}

// Close releases the inference session.
func (e *ONNX) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// wordPieceVocab is a minimal BERT WordPiece tokenizer: enough for feeding a
// MiniLM-class model, not a full HuggingFace-compatible implementation.
type wordPieceVocab struct {
	ids map[string]int
}

func loadWordPieceVocab(path string) (*wordPieceVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &wordPieceVocab{ids: file.Model.Vocab}, nil
}

func (v *wordPieceVocab) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := v.ids[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range v.split(word) {
			if id, ok := v.ids[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, unkToken)
			}
		}
	}
	return tokens
}

// split greedily matches the longest known prefix, using the ## continuation
// convention for non-initial pieces.
func (v *wordPieceVocab) split(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := v.ids[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
