package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algotrading/pkg/exception"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		desc     string
		input    Option
		expected string
	}{
		{
			"defaults",
			Option{},
			"postgres://localhost:5432?sslmode=disable",
		},
		{
			"full",
			Option{Host: "db", Port: 6543, User: "trader", Password: "s3cret", Database: "algo", SSLMode: "require", Params: map[string]string{"application_name": "batch"}},
			"postgres://trader:s3cret@db:6543/algo?application_name=batch&sslmode=require",
		},
		{
			"conn string wins",
			Option{Host: "ignored", ConnString: "postgres://x/y"},
			"postgres://x/y",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.input.dsn()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSQLite(t *testing.T) {
	c, err := New(Option{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DriverSQLite, c.Driver())
	var one int
	require.NoError(t, c.DB().Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(Option{Driver: "oracle"})
	assert.ErrorIs(t, err, exception.ErrUnsupportedDriver)
}
