package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultLocalDimension = 256

type localConfig struct {
	Dimension int `json:"dimension"`
}

// localProvider needs no network. It echoes the user turn back and embeds
// text as a hashed bag of words, which is enough for development setups and
// for lexical recall in tests.
type localProvider struct {
	dimension int
}

func (p *localProvider) Name() string {
	return "local"
}

func (p *localProvider) Generate(ctx context.Context, model string, prompt *Prompt) (string, error) {
	reply := fmt.Sprintf("I received your message: '%s'.", prompt.LastUserText())
	if n := len(prompt.Context); n > 0 {
		reply += fmt.Sprintf("\n\nBased on our conversation context, I found %d relevant previous messages.", n)
	}
	return reply, nil
}

func (p *localProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	return HashEmbedding(text, p.dimension), nil
}

// HashEmbedding maps each lowercase word of text into one of dim buckets and
// returns the L2 normalised counts. Empty text yields the zero vector.
func HashEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultLocalDimension
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func newLocalProvider(args interface{}) (*localProvider, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultLocalDimension
	}
	return &localProvider{dimension: cfg.Dimension}, nil
}

func init() {
	Register("local", func(args interface{}) (IProvider, error) {
		return newLocalProvider(args)
	})
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		return newLocalProvider(args)
	})
}
