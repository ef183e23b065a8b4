package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"balancer/pkg/crypto"
)

// Режимы служебного запуска
const (
	toolHashPassword = "hash-password"
	toolSeal         = "seal"
)

// hashCost - стоимость bcrypt для -hash-password
var hashCost = crypto.DefaultCost

var errEmptyInput = errors.New("empty input: pass the value on stdin")

// runTool читает значение из первой строки r и печатает в w
// bcrypt-хеш для ADMIN_PASSWORD_HASH или ENC: значение для .env
func runTool(w io.Writer, r io.Reader, mode, key string) error {
	value, err := readValue(r)
	if err != nil {
		return err
	}

	var out string
	switch mode {
	case toolHashPassword:
		out, err = crypto.HashPasswordWithCost(value, hashCost)
	case toolSeal:
		if key == "" {
			return crypto.ErrMissingKey
		}
		out, err = crypto.SealSecret(value, key)
	default:
		return fmt.Errorf("unknown tool %q", mode)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", mode, err)
	}

	_, err = fmt.Fprintln(w, out)
	return err
}

func readValue(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return "", errEmptyInput
	}
	value := strings.TrimRight(sc.Text(), "\r")
	if value == "" {
		return "", errEmptyInput
	}
	return value, nil
}
