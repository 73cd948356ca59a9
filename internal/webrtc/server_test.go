package webrtc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
)

func TestHandleOfferRejectsBadJSON(t *testing.T) {
	s := NewServer(nil, 1, nil)
	if _, err := s.HandleOffer([]byte("not json")); err == nil {
		t.Fatal("garbage offer accepted")
	}
	if s.GetClientCount() != 0 {
		t.Fatal("client registered for a bad offer")
	}
}

func TestHandleOfferRespectsLimit(t *testing.T) {
	s := NewServer(nil, 1, nil)
	s.clients["existing"] = &Client{id: "existing"}

	offer, _ := json.Marshal(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	_, err := s.HandleOffer(offer)
	if !errors.Is(err, ErrTooManyClients) {
		t.Fatalf("err = %v, want ErrTooManyClients", err)
	}
}

// TestDataChannelLoopback negotiates a real peer connection over loopback
// and checks that broadcast events arrive on the overlay channel.
func TestDataChannelLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback negotiation skipped in -short mode")
	}

	s := NewServer(nil, 2, nil)
	defer s.Close()

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	browser, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer browser.Close()

	dc, err := browser.CreateDataChannel(ChannelLabel, nil)
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}
	opened := make(chan struct{})
	received := make(chan string, 4)
	dc.OnOpen(func() { close(opened) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { received <- string(msg.Data) })

	offer, err := browser.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(browser)
	if err := browser.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	<-gathered

	offerJSON, _ := json.Marshal(browser.LocalDescription())
	answerJSON, err := s.HandleOffer(offerJSON)
	if err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(answerJSON, &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if err := browser.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	select {
	case <-opened:
	case <-time.After(10 * time.Second):
		t.Fatal("data channel never opened")
	}

	// The server side learns about the channel asynchronously; keep
	// broadcasting until a message lands.
	deadline := time.After(10 * time.Second)
	for {
		s.Broadcast([]byte(`{"seq":1}`))
		select {
		case msg := <-received:
			if msg != `{"seq":1}` {
				t.Fatalf("received %q", msg)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event received over the data channel")
		}
	}
}
