// Package memo remembers preview outcomes per context generation, so retyping
// an expression against unchanged state does not evaluate it again.
package memo

import (
	"bytes"
	"errors"
	"io"

	"github.com/dgryski/go-farm"
	"github.com/shamaton/msgpack/v2"
)

type Hash uint64

// Key identifies an evaluation: the expression and the generation of the
// context it ran against.
type Key struct {
	Generation uint64
	Expr       string
}

func (k Key) Hash() (Hash, error) {
	b, err := msgpack.Marshal(k)
	if err != nil {
		return 0, err
	}
	return Hash(farm.Hash64(b)), nil
}

// Outcome is the display result of an evaluation, success or failure.
type Outcome struct {
	Text   string
	Err    string
	Failed bool
}

// OutcomeOf captures the return values of an evaluation.
func OutcomeOf(text string, err error) Outcome {
	if err != nil {
		return Outcome{Err: err.Error(), Failed: true}
	}
	return Outcome{Text: text}
}

// Result turns the outcome back into return values.
func (o Outcome) Result() (string, error) {
	if o.Failed {
		return "", errors.New(o.Err)
	}
	return o.Text, nil
}

func (o *Outcome) Serialize(w io.Writer) error {
	return msgpack.MarshalWrite(w, o)
}

func (o *Outcome) Deserialize(r io.Reader) error {
	return msgpack.UnmarshalRead(r, o)
}

func encode(o Outcome) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(b []byte) (Outcome, error) {
	var o Outcome
	err := o.Deserialize(bytes.NewReader(b))
	return o, err
}
