package auth

import "golang.org/x/crypto/bcrypt"

// maxPasswordBytes is the longest input bcrypt will hash.
const maxPasswordBytes = 72

func hashPassword(p string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), cost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}
