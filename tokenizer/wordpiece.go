package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxWordChars is the longest word WordPiece will split; longer words become
// a single unknown token.
const maxWordChars = 100

// WordPiece implements BERT uncased tokenization over a vocab.txt file.
type WordPiece struct {
	vocab map[string]int32

	clsID int32
	sepID int32
	padID int32
	unkID int32
}

// LoadWordPiece reads a vocab.txt with one token per line; the line number
// is the id.
func LoadWordPiece(path string) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocab file: %w", err)
	}
	defer f.Close()
	return ReadWordPiece(f)
}

// ReadWordPiece parses a vocab from r.
func ReadWordPiece(r io.Reader) (*WordPiece, error) {
	w := &WordPiece{vocab: make(map[string]int32)}

	sc := bufio.NewScanner(r)
	var id int32
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := w.vocab[tok]; !dup {
			w.vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading vocab: %w", err)
	}

	var missing []string
	special := func(name string) int32 {
		v, ok := w.vocab[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return v
	}
	w.clsID = special("[CLS]")
	w.sepID = special("[SEP]")
	w.padID = special("[PAD]")
	w.unkID = special("[UNK]")
	if len(missing) > 0 {
		return nil, errors.New("vocab is missing " + strings.Join(missing, ", "))
	}
	return w, nil
}

// VocabSize returns the number of distinct tokens.
func (w *WordPiece) VocabSize() int { return len(w.vocab) }

func (w *WordPiece) BOSID() int32 { return w.clsID }
func (w *WordPiece) EOSID() int32 { return w.sepID }
func (w *WordPiece) PadID() int32 { return w.padID }
func (w *WordPiece) UnkID() int32 { return w.unkID }

func (w *WordPiece) Close() error { return nil }

// EncodeIDs lower-cases, strips accents, splits on whitespace and
// punctuation, then splits each word into the longest vocabulary pieces.
func (w *WordPiece) EncodeIDs(text string) []int32 {
	var ids []int32
	for _, word := range basicTokens(text) {
		ids = append(ids, w.wordIDs(word)...)
	}
	return ids
}

func (w *WordPiece) wordIDs(word string) []int32 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int32{w.unkID}
	}

	var ids []int32
	for start := 0; start < len(runes); {
		end := len(runes)
		found := int32(-1)
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				found = id
				break
			}
		}
		if found < 0 {
			return []int32{w.unkID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// basicTokens performs BERT's basic tokenization for uncased models.
func basicTokens(text string) []string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
		case unicode.Is(unicode.Mn, r):
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case isPunct(r) || isCJK(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
