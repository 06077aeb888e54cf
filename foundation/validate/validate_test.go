package validate_test

import (
	"testing"

	"github.com/ardanlabs/meshchain/foundation/validate"
)

type minerConfig struct {
	Mode string `json:"mode" validate:"required,oneof=create join"`
	Host string `json:"host" validate:"required,hostname_port,max=21"`
	Peer string `json:"peer" validate:"omitempty,hostname_port"`
}

func Test_Check(t *testing.T) {
	tt := []struct {
		name   string
		cfg    minerConfig
		fields []string
	}{
		{"valid-create", minerConfig{Mode: "create", Host: "127.0.0.1:4000"}, nil},
		{"valid-join", minerConfig{Mode: "join", Host: "127.0.0.1:4001", Peer: "127.0.0.1:4000"}, nil},
		{"bad-mode", minerConfig{Mode: "fork", Host: "127.0.0.1:4000"}, []string{"mode"}},
		{"missing-host", minerConfig{Mode: "create"}, []string{"host"}},
		{"long-host", minerConfig{Mode: "create", Host: "a-very-long-hostname.example:4000"}, []string{"host"}},
		{"bad-peer", minerConfig{Mode: "join", Host: "127.0.0.1:4001", Peer: "nowhere"}, []string{"peer"}},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			err := validate.Check(tst.cfg)

			if len(tst.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if !validate.IsFieldErrors(err) {
				t.Fatalf("expected field errors, got %v", err)
			}

			fe := validate.GetFieldErrors(err)
			if len(fe) != len(tst.fields) || fe[0].Field != tst.fields[0] {
				t.Fatalf("got %+v, exp fields %v", fe, tst.fields)
			}
			if fe[0].Error == "" {
				t.Fatal("expected a translated message")
			}
		})
	}
}
