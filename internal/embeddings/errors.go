package embeddings

import "errors"

var errEmptyVector = errors.New("provider returned an empty vector")
