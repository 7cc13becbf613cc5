package channel

import (
	"bytes"
	"context"
	"encoding/xml"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pixelbot/internal/domain"
	"pixelbot/internal/media"
)

type stubHandler struct {
	reply domain.Reply
	got   []domain.InboundMessage
}

func (h *stubHandler) Handle(_ context.Context, msg domain.InboundMessage) domain.Reply {
	h.got = append(h.got, msg)
	return h.reply
}

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

func newTestGateway(t *testing.T, h Handler) (*Gateway, *media.FileStore) {
	t.Helper()
	store, err := media.NewFileStore(media.FileStoreConfig{Dir: t.TempDir(), Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	gw := NewGateway(GatewayConfig{
		Addr:        "127.0.0.1:0",
		MetricsPath: "/metrics",
		Handler:     h,
		Store:       store,
		Logger:      testLogger(),
	})
	return gw, store
}

func postForm(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func parseTwiML(t *testing.T, body string) twimlResponse {
	t.Helper()
	var resp twimlResponse
	if err := xml.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("invalid TwiML %q: %v", body, err)
	}
	return resp
}

func TestWhatsApp_RepliesWithMessage(t *testing.T) {
	h := &stubHandler{reply: domain.Reply{Text: "✅ Your image has been generated and is on its way!"}}
	gw, _ := newTestGateway(t, h)

	rec := postForm(t, gw.Handler(), url.Values{"Body": {"a red bicycle"}, "From": {"whatsapp:+15551234567"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}

	resp := parseTwiML(t, rec.Body.String())
	if len(resp.Messages) != 1 || resp.Messages[0] != h.reply.Text {
		t.Errorf("messages = %v", resp.Messages)
	}
	if len(h.got) != 1 || h.got[0].Body != "a red bicycle" || h.got[0].From != "whatsapp:+15551234567" {
		t.Errorf("handler got %+v", h.got)
	}
}

func TestWhatsApp_EmptyReply(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	rec := postForm(t, gw.Handler(), url.Values{"Body": {"  "}, "From": {"whatsapp:+1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := parseTwiML(t, rec.Body.String()); len(resp.Messages) != 0 {
		t.Errorf("expected no messages, got %v", resp.Messages)
	}
}

func TestWhatsApp_MissingFieldsTreatedAsEmpty(t *testing.T) {
	h := &stubHandler{}
	gw, _ := newTestGateway(t, h)

	rec := postForm(t, gw.Handler(), url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(h.got) != 1 || h.got[0].Body != "" {
		t.Errorf("handler got %+v", h.got)
	}
}

func TestWhatsApp_BadForm(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader("Body=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWhatsApp_RejectsGet(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whatsapp", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestImages_ServesStoredImage(t *testing.T) {
	gw, store := newTestGateway(t, &stubHandler{})

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatal(err)
	}
	name, err := store.Save(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/"+name, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), buf.Bytes()) {
		t.Error("served bytes differ from stored bytes")
	}
}

func TestImages_NotFound(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	for _, name := range []string{"generated_00000000000000000000000000000000.png", "generated_zz.png", "other.png"} {
		rec := httptest.NewRecorder()
		gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/"+name, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Image not found") {
			t.Errorf("%s: body = %q", name, rec.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "🚀 WhatsApp Image Bot is running with Nano Banana API!" {
		t.Errorf("body = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pixelbot_uptime_seconds") {
		t.Error("metrics output missing uptime")
	}
}

func TestMetricsDisabled(t *testing.T) {
	gw := NewGateway(GatewayConfig{Handler: &stubHandler{}, Logger: testLogger()})

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGateway_ServeAndShutdown(t *testing.T) {
	gw, _ := newTestGateway(t, &stubHandler{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("gateway did not shut down")
	}
}

// sendingHandler blocks until released, then delivers through the Twilio sender
// the way the pipeline does after a slow generation.
type sendingHandler struct {
	entered chan struct{}
	release chan struct{}
	done    chan error
	sender  *TwilioSender
}

func (h *sendingHandler) Handle(ctx context.Context, msg domain.InboundMessage) domain.Reply {
	close(h.entered)
	<-h.release
	_, err := h.sender.SendMedia(ctx, domain.MediaMessage{To: msg.From, Caption: msg.Body})
	h.done <- err
	return domain.Reply{Text: "ok"}
}

func TestWhatsApp_CallerHangupDoesNotCancelDelivery(t *testing.T) {
	fake := &fakeCreator{sid: "SM1"}
	h := &sendingHandler{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		done:    make(chan error, 1),
		sender:  &TwilioSender{api: fake, logger: testLogger()},
	}
	gw, _ := newTestGateway(t, h)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	form := url.Values{"Body": {"a red bicycle"}, "From": {"whatsapp:+15551234567"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/whatsapp", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	clientErr := make(chan error, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		clientErr <- err
	}()

	select {
	case <-h.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}
	cancel()
	if err := <-clientErr; err == nil {
		t.Fatal("expected the client request to be aborted")
	}
	// Give the server time to notice the closed connection.
	time.Sleep(100 * time.Millisecond)
	close(h.release)

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("send after hangup failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not finish")
	}
	if fake.params == nil || *fake.params.To != "whatsapp:+15551234567" {
		t.Errorf("message was not created: %+v", fake.params)
	}
}
