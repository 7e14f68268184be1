package mocks

// Mock implementations used for testing
//go:generate mockgen -destination=./mock_sender.go -package=mocks "github.com/G-Research/phonehome/internal/statsaggregator/delivery" Sender,Producer
