package p2p_test

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ardanlabs/meshchain/foundation/blockchain/p2p"
	"github.com/ardanlabs/meshchain/foundation/blockchain/wire"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func startServer(t *testing.T, mux *p2p.Mux) *p2p.Server {
	t.Helper()

	srv, err := p2p.Listen(p2p.Config{
		Host:        "127.0.0.1:0",
		Mux:         mux,
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go srv.Serve()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return srv
}

func Test_RequestStream(t *testing.T) {
	mux := p2p.NewMux()

	mux.Handle(wire.TagCheck, func(ctx context.Context, msg wire.Message, reply wire.Responder) error {
		return reply(wire.NewMessage(wire.TagAck, "127.0.0.1:9000", 3, ""))
	})

	mux.Handle(wire.TagRequireBlockchain, func(ctx context.Context, msg wire.Message, reply wire.Responder) error {
		for i := 0; i < 3; i++ {
			if err := reply(wire.NewMessage(wire.TagSendBlockchain, "127.0.0.1:9000", 3, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	})

	srv := startServer(t, mux)
	client := wire.NewClient()

	t.Log("Given the need to answer requests over TCP.")
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		t.Logf("\tTest 0:\tWhen sending a liveness check.")
		{
			reply, err := client.Request(ctx, srv.Addr(), wire.NewMessage(wire.TagCheck, "127.0.0.1:9001", 1, ""))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to get a reply: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to get a reply.", success)

			if reply.Tag != wire.TagAck || reply.SenderID != 3 {
				t.Logf("\t\tTest 0:\tgot: %s", reply)
				t.Fatalf("\t%s\tTest 0:\tShould get back an Ack from id 3.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get back an Ack from id 3.", success)
		}

		t.Logf("\tTest 1:\tWhen requesting a stream of replies.")
		{
			start := time.Now()

			var got []string
			f := func(m wire.Message) error {
				got = append(got, m.Payload)
				return nil
			}

			if err := client.Stream(ctx, srv.Addr(), wire.NewMessage(wire.TagRequireBlockchain, "127.0.0.1:9001", 1, ""), f); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to stream: %v", failed, err)
			}

			if len(got) != 3 || got[0] != "0" || got[2] != "2" {
				t.Logf("\t\tTest 1:\tgot: %v", got)
				t.Fatalf("\t%s\tTest 1:\tShould get every reply in order.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould get every reply in order.", success)

			// The server closes once the replies are written so the client
			// never has to wait out the empty reads.
			if time.Since(start) > wire.DefaultEmptyReadWait*wire.DefaultMaxEmptyReads {
				t.Fatalf("\t%s\tTest 1:\tShould end the stream when the server closes.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould end the stream when the server closes.", success)
		}
	}
}

func Test_MalformedFrame(t *testing.T) {
	mux := p2p.NewMux()
	mux.Handle(wire.TagCheck, func(ctx context.Context, msg wire.Message, reply wire.Responder) error {
		return reply(wire.NewMessage(wire.TagAck, "", 0, ""))
	})

	srv := startServer(t, mux)

	t.Log("Given the need to survive malformed frames.")
	{
		t.Logf("\tTest 0:\tWhen a frame carries an unknown tag.")
		{
			conn, err := net.Dial("tcp", srv.Addr())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to connect: %v", failed, err)
			}
			defer conn.Close()

			frame := make([]byte, 4+wire.HeaderSize)
			frame[3] = wire.HeaderSize
			frame[4] = 0xff
			conn.Write(frame)

			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
				t.Fatalf("\t%s\tTest 0:\tShould drop the connection: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould drop the connection.", success)
		}

		t.Logf("\tTest 1:\tWhen a new connection comes in afterwards.")
		{
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := wire.NewClient().Request(ctx, srv.Addr(), wire.NewMessage(wire.TagCheck, "", 0, "")); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould keep serving: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould keep serving.", success)
		}
	}
}

func Test_Dispatch(t *testing.T) {
	t.Log("Given the need to route messages by tag.")
	{
		mux := p2p.NewMux()

		var called wire.Tag
		mux.Handle(wire.TagBlock, func(ctx context.Context, msg wire.Message, reply wire.Responder) error {
			called = msg.Tag
			return nil
		})

		t.Logf("\tTest 0:\tWhen a handler is registered.")
		{
			if err := mux.Dispatch(context.Background(), wire.Message{Tag: wire.TagBlock}, nil); err != nil || called != wire.TagBlock {
				t.Fatalf("\t%s\tTest 0:\tShould call the handler: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould call the handler.", success)
		}

		t.Logf("\tTest 1:\tWhen no handler is registered.")
		{
			if err := mux.Dispatch(context.Background(), wire.Message{Tag: wire.TagAck}, nil); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould return an error.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould return an error.", success)
		}
	}
}
