package handshake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-sam-session/lib/protocol"
	"github.com/go-i2p/go-sam-session/lib/util"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
		terminal bool
	}{
		{StateStart, "START", false},
		{StateAwaitingHello, "AWAITING_HELLO", false},
		{StateAwaitingCreateResult, "AWAITING_CREATE_RESULT", false},
		{StateAwaitingDestination, "AWAITING_DESTINATION", false},
		{StateEstablished, "ESTABLISHED", true},
		{StateFailed, "FAILED", true},
		{State(99), "UNKNOWN", false},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestBegin(t *testing.T) {
	t.Run("without version goes straight to create", func(t *testing.T) {
		state, eff := Begin(&Request{Nickname: "alice"})
		assert.Equal(t, StateAwaitingCreateResult, state)
		require.NotNil(t, eff.Send)
		assert.Equal(t, "SESSION CREATE STYLE=STREAM ID=alice DESTINATION=TRANSIENT\n", eff.Send.String())
	})

	t.Run("with version says hello first", func(t *testing.T) {
		state, eff := Begin(&Request{Nickname: "alice", MinVersion: "3.1", MaxVersion: "3.3"})
		assert.Equal(t, StateAwaitingHello, state)
		require.NotNil(t, eff.Send)
		assert.Equal(t, "HELLO VERSION MIN=3.1 MAX=3.3\n", eff.Send.String())
	})

	t.Run("persisted key used verbatim", func(t *testing.T) {
		_, eff := Begin(&Request{Nickname: "alice", PrivateKey: "KEY~BLOB-"})
		require.NotNil(t, eff.Send)
		assert.Contains(t, eff.Send.String(), "DESTINATION=KEY~BLOB-")
	})
}

func TestTransition(t *testing.T) {
	req := &Request{Nickname: "alice"}

	tests := []struct {
		name      string
		state     State
		tok       protocol.Token
		wantState State
		wantSend  string
		wantErr   error
	}{
		{
			name:      "hello ok",
			state:     StateAwaitingHello,
			tok:       &protocol.HelloReply{Result: protocol.ResultOK, Version: "3.3"},
			wantState: StateAwaitingCreateResult,
			wantSend:  "SESSION CREATE STYLE=STREAM ID=alice DESTINATION=TRANSIENT\n",
		},
		{
			name:      "hello noversion",
			state:     StateAwaitingHello,
			tok:       &protocol.HelloReply{Result: protocol.ResultNoVersion},
			wantState: StateFailed,
			wantErr:   util.ErrNoVersion,
		},
		{
			name:      "create ok",
			state:     StateAwaitingCreateResult,
			tok:       &protocol.SessionStatus{Result: protocol.ResultOK, Destination: "priv"},
			wantState: StateAwaitingDestination,
			wantSend:  "NAMING LOOKUP NAME=ME\n",
		},
		{
			name:      "create duplicated id",
			state:     StateAwaitingCreateResult,
			tok:       &protocol.SessionStatus{Result: protocol.ResultDuplicatedID},
			wantState: StateFailed,
			wantErr:   util.ErrDuplicateID,
		},
		{
			name:      "create i2p error",
			state:     StateAwaitingCreateResult,
			tok:       &protocol.SessionStatus{Result: protocol.ResultI2PError, Message: "out of memory"},
			wantState: StateFailed,
			wantErr:   util.ErrI2PError,
		},
		{
			name:      "lookup ok",
			state:     StateAwaitingDestination,
			tok:       &protocol.NamingReply{Result: protocol.ResultOK, Name: "ME", Value: "abcd...xyz"},
			wantState: StateEstablished,
		},
		{
			name:      "lookup not found",
			state:     StateAwaitingDestination,
			tok:       &protocol.NamingReply{Result: protocol.ResultKeyNotFound, Name: "ME"},
			wantState: StateFailed,
			wantErr:   util.ErrKeyNotFound,
		},
		{
			name:      "naming reply while creating",
			state:     StateAwaitingCreateResult,
			tok:       &protocol.NamingReply{Result: protocol.ResultOK, Value: "x"},
			wantState: StateFailed,
			wantErr:   util.ErrProtocolSyntax,
		},
		{
			name:      "status while looking up",
			state:     StateAwaitingDestination,
			tok:       &protocol.SessionStatus{Result: protocol.ResultOK},
			wantState: StateFailed,
			wantErr:   util.ErrProtocolSyntax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, eff := Transition(req, tt.state, tt.tok)
			assert.Equal(t, tt.wantState, state)
			gotSend := ""
			if eff.Send != nil {
				gotSend = eff.Send.String()
			}
			assert.Equal(t, tt.wantSend, gotSend)
			if tt.wantErr == nil {
				assert.NoError(t, eff.Err)
			} else {
				assert.ErrorIs(t, eff.Err, tt.wantErr)
			}
		})
	}
}

func TestTransition_UnexpectedReplyCarriesLine(t *testing.T) {
	const line = "NAMING REPLY RESULT=OK NAME=ME VALUE=x"
	tok, err := protocol.Decode(line)
	require.NoError(t, err)

	_, eff := Transition(&Request{Nickname: "alice"}, StateAwaitingCreateResult, tok)
	var synErr *util.ProtocolSyntaxError
	require.ErrorAs(t, eff.Err, &synErr)
	assert.Equal(t, line, synErr.Line)
	assert.Contains(t, synErr.Error(), "unexpected NAMING REPLY in state AWAITING_CREATE_RESULT")
}

func TestTransition_FailureCarriesMessage(t *testing.T) {
	_, eff := Transition(&Request{Nickname: "alice"}, StateAwaitingCreateResult,
		&protocol.SessionStatus{Result: protocol.ResultI2PError, Message: "out of memory"})

	var sce *util.SessionCreationError
	require.ErrorAs(t, eff.Err, &sce)
	assert.Equal(t, protocol.ResultI2PError, sce.Result)
	assert.Equal(t, "out of memory", sce.Message)
	assert.Equal(t, "alice", sce.Nickname)
}

func TestMachine_Sequence(t *testing.T) {
	m := NewMachine(Request{Nickname: "alice"})
	require.Equal(t, StateStart, m.State())

	cmd := m.Start()
	require.NotNil(t, cmd)
	assert.Equal(t, protocol.VerbSession, cmd.Verb)
	assert.Nil(t, m.Start(), "second Start")

	cmd = m.Handle(&protocol.SessionStatus{Result: protocol.ResultOK, Destination: "routerkey"})
	require.NotNil(t, cmd)
	assert.Equal(t, "NAMING LOOKUP NAME=ME\n", cmd.String())
	_, ok := m.Result()
	require.False(t, ok, "Result available before established")

	assert.Nil(t, m.Handle(&protocol.NamingReply{Result: protocol.ResultOK, Value: "pubdest"}))

	res, ok := m.Result()
	require.True(t, ok, "state %s err %v", m.State(), m.Err())
	assert.Equal(t, "alice", res.Nickname)
	assert.Equal(t, "pubdest", res.Destination)
	assert.Equal(t, "routerkey", res.PrivateKey)
	assert.True(t, res.Generated)

	// Terminal machines ignore further input.
	assert.Nil(t, m.Handle(&protocol.SessionStatus{Result: protocol.ResultOK}))
	assert.Equal(t, StateEstablished, m.State())
	m.Fail(errors.New("late"))
	assert.Equal(t, StateEstablished, m.State())
	assert.NoError(t, m.Err())
}

func TestMachine_SuppliedKeyIsKept(t *testing.T) {
	m := NewMachine(Request{Nickname: "bob", PrivateKey: "persisted"})
	m.Start()
	m.Handle(&protocol.SessionStatus{Result: protocol.ResultOK, Destination: "echoed"})
	m.Handle(&protocol.NamingReply{Result: protocol.ResultOK, Value: "pub"})

	res, ok := m.Result()
	require.True(t, ok, "not established")
	assert.Equal(t, "persisted", res.PrivateKey)
	assert.False(t, res.Generated)
}

func TestMachine_OptionsAreCopied(t *testing.T) {
	opts := map[string]string{"inbound.length": "1"}
	m := NewMachine(Request{Nickname: "carol", Options: opts})
	opts["inbound.length"] = "3"
	opts["evil"] = "x"

	cmd := m.Start().String()
	assert.Contains(t, cmd, "inbound.length=1")
	assert.NotContains(t, cmd, "evil")
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"minimal", Request{Nickname: "alice"}, false},
		{"default nickname", Request{}, false},
		{"nickname with space", Request{Nickname: "a b"}, true},
		{"reserved option", Request{Nickname: "a", Options: map[string]string{"STYLE": "RAW"}}, true},
		{"bad option key", Request{Nickname: "a", Options: map[string]string{"k=v": "x"}}, true},
		{"key with newline", Request{Nickname: "a", PrivateKey: "abc\n"}, true},
		{"inverted versions", Request{Nickname: "a", MinVersion: "3.3", MaxVersion: "3.1"}, true},
		{"two-digit minor", Request{Nickname: "a", MinVersion: "3.3", MaxVersion: "3.10"}, false},
		{"inverted two-digit minor", Request{Nickname: "a", MinVersion: "3.10", MaxVersion: "3.3"}, true},
		{"malformed version", Request{Nickname: "a", MinVersion: "three"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, util.ErrValidation)
		})
	}
}

func TestDefaultNickname(t *testing.T) {
	a := DefaultNickname()
	assert.NotEmpty(t, a)
	assert.Equal(t, a, DefaultNickname(), "stable within a process")
	assert.NoError(t, protocol.ValidateSessionID(a))
	assert.Equal(t, a, (&Request{}).EffectiveNickname())
}
