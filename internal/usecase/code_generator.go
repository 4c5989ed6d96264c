package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

const maxCodeAttempts = 10

// generateCode creates a secure, random, human-readable code of the given
// length from model.CodeAlphabet. The alphabet has 32 symbols, so taking a
// byte modulo 32 is unbiased.
func generateCode(r io.Reader, length int) (string, error) {
	const chars = model.CodeAlphabet

	buffer := make([]byte, length)
	if _, err := io.ReadFull(r, buffer); err != nil {
		return "", err
	}
	for i := range buffer {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}
	return string(buffer), nil
}

// codeSpace returns the number of distinct codes of the given length,
// saturating at MaxInt64.
func codeSpace(length int) int64 {
	bits := float64(length) * math.Log2(float64(len(model.CodeAlphabet)))
	if bits >= 63 {
		return math.MaxInt64
	}
	return int64(1) << uint(bits)
}

// insertUniqueCode draws fresh codes until one inserts cleanly. The insert
// itself is the uniqueness check, so two concurrent callers can never both
// hold the same code.
func insertUniqueCode(ctx context.Context, codes repository.AccessCodeRepository, tx repository.Tx, length int, build func(code string) *model.AccessCode) (*model.AccessCode, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		s, err := generateCode(rand.Reader, length)
		if err != nil {
			return nil, err
		}
		if taken, err := codes.Exists(ctx, tx, s); err != nil {
			return nil, err
		} else if taken {
			continue
		}
		c := build(s)
		err = codes.Insert(ctx, tx, c)
		if errors.Is(err, domain.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, domain.Wrap(domain.KindInternal, "could not allocate a unique access code", domain.ErrDuplicateCode)
}
