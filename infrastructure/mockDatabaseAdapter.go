package infrastructure

import (
	"errors"
)

// MockDbAdapter use for unit tests
type MockDbAdapter struct {
	PingError bool
	Closed    bool
}

func NewMockDbAdapter() *MockDbAdapter {
	return &MockDbAdapter{
		PingError: false,
	}
}

func (c *MockDbAdapter) EnablePingError() {
	c.PingError = true
}

func (c *MockDbAdapter) DisablePingError() {
	c.PingError = false
}

func (c *MockDbAdapter) Close() error {
	c.Closed = true
	return nil
}

func (c *MockDbAdapter) Ping() error {
	if c.PingError {
		return errors.New("Mock Ping Error")
	}
	return nil
}
