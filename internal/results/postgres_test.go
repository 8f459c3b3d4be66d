package results

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

func TestPostgresSinkInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewPostgresSinkWithPool(mock, "crawl_results")
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	sink.now = func() time.Time { return now }

	result := crawler.Result{
		Queue: "prices",
		Job:   queue.JobRecord{URL: "https://example.com", Depth: 2},
		Data:  map[string]string{"price": "1.99"},
		Links: []string{"https://example.com/a", "https://example.com/b"},
		Response: crawler.Response{
			Status:  200,
			URL:     "https://example.com/",
			Headers: http.Header{"Content-Type": {"text/html"}},
			Body:    "<html>price</html>",
		},
	}

	mock.ExpectExec("INSERT INTO crawl_results").
		WithArgs(
			"prices",
			"https://example.com",
			2,
			"https://example.com/",
			200,
			[]byte(`{"Content-Type":["text/html"]}`),
			[]byte(`{"price":"1.99"}`),
			2,
			"00c95b41d04e2af4bc283ce4fab6dc4f612f7d44931cffcf3e17b04115ae2c94",
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, sink.Write(context.Background(), result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	sink, err := NewPostgresSinkWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO crawl_results").WillReturnError(errors.New("relation does not exist"))
	err = sink.Write(context.Background(), crawler.Result{Queue: "prices"})
	require.ErrorContains(t, err, "insert result")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresSinkValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresSinkWithPool(nil, "crawl_results")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewPostgresSinkWithPool(mock, "results; DROP TABLE x")
	require.Error(t, err)

	_, err = NewPostgresSink(context.Background(), PostgresConfig{})
	require.Error(t, err)
}
