package inference

import "math"

// Sigmoid is the post-decryption step of the logistic prediction contract.
// The server returns the encrypted linear score unchanged; the secret-key
// holder decrypts it and applies this function to obtain the probability.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
