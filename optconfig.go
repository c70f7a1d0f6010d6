package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/manifoldco/promptui"
)

var validAccountRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

var errInvalidAccount = errors.New("invalid account name (letters, digits and _.:- only, 64 chars max)")

// IsAccountValid is a simple validity check for account identities used on the
// command line.
func IsAccountValid(account string) error {
	if !validAccountRegex.MatchString(account) {
		return errInvalidAccount
	}
	return nil
}

func getInt(prompt string, defVal int, minVal int, maxVal int) (int, error) {
	validate := func(input string) error {
		value, err := strconv.Atoi(input)
		if err != nil {
			return err
		}
		if value < minVal || value > maxVal {
			return fmt.Errorf("value must be between %d and %d", minVal, maxVal)
		}
		return nil
	}
	result, err := (&promptui.Prompt{
		Label:    prompt,
		Default:  strconv.Itoa(defVal),
		Validate: validate,
	}).Run()
	if err != nil {
		return 0, err
	}
	value, _ := strconv.Atoi(result)
	return value, nil
}

func getAccount(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:    prompt,
		Default:  defVal,
		Validate: IsAccountValid,
	}).Run()
}

func getSymbol(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			if len(s) == 0 || len(s) > 12 {
				return errors.New("symbol must be 1-12 characters")
			}
			return nil
		},
	}).Run()
}

func getPrecision(prompt string, defVal string) (string, error) {
	return (&promptui.Prompt{
		Label:   prompt,
		Default: defVal,
		Validate: func(s string) error {
			p, err := uint256.FromDecimal(s)
			if err != nil {
				return err
			}
			if p.IsZero() {
				return errors.New("precision must be at least 1")
			}
			return nil
		},
	}).Run()
}

func yesNo(prompt string) (string, error) {
	return (&promptui.Prompt{
		Label:     prompt,
		IsConfirm: true,
	}).Run()
}
