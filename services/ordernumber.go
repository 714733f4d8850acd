package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrOrderNumberExhausted 規定回数試しても空き番号が見つからなかった
var ErrOrderNumberExhausted = errors.New("order number generation exhausted")

// GenerateOrderNumber R-YYMMDD-XXXXXX 形式の番号を作る。exists が true を返す限り引き直す
func GenerateOrderNumber(now time.Time, maxAttempts int, exists func(string) (bool, error)) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for i := 0; i < maxAttempts; i++ {
		suffix, err := randomSuffix(6)
		if err != nil {
			return "", err
		}
		candidate := fmt.Sprintf("R-%s-%s", now.Format("060102"), suffix)

		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check order number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrOrderNumberExhausted, maxAttempts)
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		buf[i] = orderNumberAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
