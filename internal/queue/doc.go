// Package queue serializes backend requests.
//
// # Overview
//
// Annotation fires many parse requests at once (one per paragraph, often
// several documents at a time) and the user fires mutations while those are
// outstanding. The backend tolerates one request at a time and tells the
// caller how long to wait before the next. This package turns the concurrent
// submissions into one ordered, rate-limited, cancelable stream:
//
//   - Queue: FIFO of Parse and Mutate requests executed one at a time, with
//     the backend-reported delay after a success and a fixed backoff after a
//     failure
//   - Handle: the caller's view of one submitted request
//   - Batcher: coalesces parse texts submitted within a short window into a
//     single ParseRequest and routes each text's tokens back to its submitter
//
// # Cancellation
//
// A pending request is removed and settles canceled immediately. An
// executing request has its context canceled, but the queue still waits for
// the backend's answer before it moves on, so at most one request is ever in
// flight.
//
// # Example
//
//	q := queue.New(b, queue.WithFailureBackoff(1500*time.Millisecond))
//	defer q.Close()
//
//	h := q.Enqueue(ctx, queue.ParseRequest{Texts: []string{"今日は"}})
//	res, err := h.Wait(ctx)
package queue
