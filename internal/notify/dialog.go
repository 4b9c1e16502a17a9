package notify

import "context"

// Dialog collects the user's answer to a confirmation. Implementations block
// until the user acts or ctx ends.
type Dialog interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// DialogFunc adapts a function to Dialog.
type DialogFunc func(ctx context.Context, message string) (bool, error)

// Confirm calls f.
func (f DialogFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

type answerKey struct{}

// WithAnswer returns a context carrying a pre-supplied confirmation answer.
func WithAnswer(ctx context.Context, accept bool) context.Context {
	return context.WithValue(ctx, answerKey{}, accept)
}

// AnswerFrom returns the answer stored by WithAnswer.
func AnswerFrom(ctx context.Context) (bool, bool) {
	v, ok := ctx.Value(answerKey{}).(bool)
	return v, ok
}

// PresetDialog answers without user interaction: the context answer from
// WithAnswer when present, otherwise Default. Used where no one is there to ask.
type PresetDialog struct {
	Default bool
}

// Confirm implements Dialog.
func (d PresetDialog) Confirm(ctx context.Context, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if v, ok := AnswerFrom(ctx); ok {
		return v, nil
	}
	return d.Default, nil
}
