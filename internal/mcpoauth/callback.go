package mcpoauth

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/lucidloop/deskagent/internal/errkind"
)

// CallbackResult is what the one-shot local listener delivers: either a
// token or an error, parsed from the redirect's query string.
type CallbackResult struct {
	Token string
	Error string
}

const callbackTimeout = 5 * time.Minute

const successHTML = `<html><body><h1>Authentication Successful</h1><p>You can close this window.</p></body></html>`
const failureHTML = `<html><body><h1>Authentication Failed</h1><p>You can close this window.</p></body></html>`

// StartCallbackServer binds an ephemeral localhost port, returning the
// port and a channel that receives exactly one CallbackResult once a
// request arrives, or a timeout error after five minutes.
func StartCallbackServer(ctx context.Context) (port int, results <-chan CallbackResult, errs <-chan error, shutdown func(), err error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, nil, nil, nil, errkind.Wrap(err, errkind.IO, "start OAuth callback listener")
	}
	port = listener.Addr().(*net.TCPAddr).Port

	resultCh := make(chan CallbackResult, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("access_token")
		if token == "" {
			token = q.Get("token")
		}
		oauthErr := q.Get("error")

		w.Header().Set("Content-Type", "text/html")
		if token != "" {
			w.Write([]byte(successHTML))
		} else {
			w.Write([]byte(failureHTML))
		}

		select {
		case resultCh <- CallbackResult{Token: token, Error: oauthErr}:
		default:
		}
	})

	srv := &http.Server{Handler: mux}
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			select {
			case errCh <- serveErr:
			default:
			}
		}
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, callbackTimeout)
	go func() {
		<-timeoutCtx.Done()
		if timeoutCtx.Err() == context.DeadlineExceeded {
			select {
			case errCh <- errkind.New(errkind.Auth, "OAuth callback timed out after %s", callbackTimeout):
			default:
			}
		}
		_ = srv.Close()
	}()

	shutdown = func() {
		cancel()
		_ = srv.Close()
	}

	return port, resultCh, errCh, shutdown, nil
}
