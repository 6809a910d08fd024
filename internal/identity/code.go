package identity

import (
	"math/rand"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// GenerateCode draws a 6-digit discovery code uniformly from [100000, 999999].
func GenerateCode() string {
	return strconv.Itoa(codeMin + rand.Intn(codeMax-codeMin+1))
}
