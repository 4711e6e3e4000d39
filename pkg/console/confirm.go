package console

import (
	"os"

	"github.com/charmbracelet/huh"
)

// ConfirmAction asks a yes/no question and returns the answer. With
// ACCESSIBLE set the prompt falls back to plain line based input.
func ConfirmAction(title, affirmative, negative string) (bool, error) {
	var confirmed bool
	field := huh.NewConfirm().
		Title(title).
		Affirmative(affirmative).
		Negative(negative).
		Value(&confirmed)

	var err error
	if os.Getenv("ACCESSIBLE") != "" {
		err = field.RunAccessible(os.Stderr, os.Stdin)
	} else {
		err = field.Run()
	}
	if err != nil {
		return false, err
	}
	return confirmed, nil
}
