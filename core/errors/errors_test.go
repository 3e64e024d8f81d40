package errors

import (
	"fmt"
	"testing"
)

func TestOffsetError(t *testing.T) {
	err := NewOffset(5, 3, 10)
	if got, want := err.Error(), "invalid offsets [5, 3) for text of length 10"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrInvalidOffset) {
		t.Errorf("Is(err, ErrInvalidOffset) = false, want true")
	}
	if Is(err, ErrUnknownID) {
		t.Errorf("Is(err, ErrUnknownID) = true, want false")
	}
}

func TestUnknownIDError(t *testing.T) {
	tests := []struct {
		name    string
		err     *UnknownIDError
		wantMsg string
	}{
		{
			name:    "with set",
			err:     NewUnknownID("Original markups", 3),
			wantMsg: `annotation 3 not found in set "Original markups"`,
		},
		{
			name:    "detached",
			err:     NewUnknownID("", 7),
			wantMsg: "annotation 7 not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !Is(tt.err, ErrUnknownID) {
				t.Errorf("Is(err, ErrUnknownID) = false, want true")
			}
		})
	}
}

func TestKeyError(t *testing.T) {
	tests := []struct {
		name     string
		err      *KeyError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "invalid",
			err:      NewInvalidKey("", "name must not be empty"),
			wantMsg:  `attribute "": name must not be empty`,
			wantBase: ErrInvalidKey,
		},
		{
			name:     "unknown",
			err:      NewUnknownKey("lemma"),
			wantMsg:  `attribute "lemma": unknown key`,
			wantBase: ErrUnknownKey,
		},
		{
			name:     "zero value defaults to invalid",
			err:      &KeyError{Name: "x", Reason: "bad"},
			wantMsg:  `attribute "x": bad`,
			wantBase: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !Is(tt.err, tt.wantBase) {
				t.Errorf("Is(err, %v) = false, want true", tt.wantBase)
			}
		})
	}
}

func TestDuplicateError(t *testing.T) {
	name := NewDuplicateName("annotation set", "Tokens")
	if got, want := name.Error(), "annotation set already exists: Tokens"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(name, ErrDuplicateName) {
		t.Errorf("Is(name, ErrDuplicateName) = false, want true")
	}

	id := NewDuplicateID("Tokens", 4)
	if !Is(id, ErrDuplicateID) {
		t.Errorf("Is(id, ErrDuplicateID) = false, want true")
	}
	if Is(id, ErrDuplicateName) {
		t.Errorf("Is(id, ErrDuplicateName) = true, want false")
	}
}

func TestValueError(t *testing.T) {
	err := NewValue("tags[1]", struct{}{})
	if got, want := err.Error(), "unsupported value of type struct {} at tags[1]"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrUnsupportedValue) {
		t.Errorf("Is(err, ErrUnsupportedValue) = false, want true")
	}
}

func TestReplayError(t *testing.T) {
	err := &ReplayError{Index: 2, Command: "annotation:remove", Err: NewUnknownID("", 9)}
	if got, want := err.Error(), "replay record 2 (annotation:remove): annotation 9 not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrUnknownID) {
		t.Errorf("Is(err, ErrUnknownID) = false, want true")
	}
	var idErr *UnknownIDError
	if !As(err, &idErr) {
		t.Fatal("As(err, *UnknownIDError) = false, want true")
	}
	if idErr.ID != 9 {
		t.Errorf("ID = %d, want 9", idErr.ID)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	base := NewOffset(0, 20, 10)
	wrapped := Wrapf(base, "add %s", "Token")
	if got, want := wrapped.Error(), "add Token: "+base.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(wrapped, ErrInvalidOffset) {
		t.Error("wrapped error lost its sentinel")
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrInvalidOffset, ErrInvalidKey, ErrUnknownID, ErrUnknownKey,
		ErrDuplicateName, ErrDuplicateID, ErrUnsupportedValue,
		ErrUnknownCommand, ErrBaselineMismatch, ErrInvalidInput,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("Is(%v, %v) = true, want false", a, b)
			}
		}
	}
	if Is(fmt.Errorf("plain"), ErrInvalidInput) {
		t.Error("unrelated error matched ErrInvalidInput")
	}
}
