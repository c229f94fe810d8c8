package qdrant

var (
	ToPoint   = toPoint
	ToResults = toResults
)
