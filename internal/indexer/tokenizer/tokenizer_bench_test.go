package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Distributed search engines process queries across multiple shards to achieve
        horizontal scalability. Each shard maintains its own inverted index and responds
        to queries independently. Results are merged using a global ranking algorithm
        that accounts for term frequency and inverse document frequency across the
        entire corpus.`,
	"long": strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. The inverted index maps each term to the documents containing it,
        along with positional information for phrase queries. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		for _, tc := range []struct {
			kind string
			tok  Tokenizer
		}{{"ascii", ASCII{}}, {"unicode", Unicode{}}} {
			b.Run(name+"/"+tc.kind, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					for token := range tc.tok.Tokenize(text) {
						_ = token
					}
				}
			})
		}
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			terms := Terms(ASCII{}, text)
			_ = terms
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "distributed search analytics platform indexing "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				terms := Terms(ASCII{}, text)
				_ = terms
			}
		})
	}
}
