package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

func TestKafkaSinkWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := NewMockmessageWriter(ctrl)
	sink := NewKafkaSinkWithWriter(writer, false)

	result := crawler.Result{
		Queue:    "prices",
		Job:      queue.JobRecord{URL: "https://example.com", Depth: 1},
		Links:    []string{"https://example.com/a"},
		Response: crawler.Response{OK: true, Status: 200, URL: "https://example.com", Body: "<html></html>"},
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			require.Len(t, msgs, 1)
			require.Equal(t, "prices", string(msgs[0].Key))

			var got crawler.Result
			require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
			require.Equal(t, result.Job, got.Job)
			require.Empty(t, got.Response.Body, "body is stripped unless requested")
			return nil
		})

	require.NoError(t, sink.Write(context.Background(), result))
}

func TestKafkaSinkWriteError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := NewMockmessageWriter(ctrl)
	sink := NewKafkaSinkWithWriter(writer, true)

	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	writer.EXPECT().Close().Return(nil)

	err := sink.Write(context.Background(), crawler.Result{Queue: "prices"})
	require.ErrorContains(t, err, "broker down")
	require.NoError(t, sink.Close())
}
