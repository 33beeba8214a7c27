package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSlug(t *testing.T) {
	assert.True(t, IsSlug("cool-room-42"))
	assert.True(t, IsSlug("a"))
	assert.False(t, IsSlug(""))
	assert.False(t, IsSlug("Upper"))
	assert.False(t, IsSlug("under_score"))
	assert.False(t, IsSlug("abcdefghijklmnopqrstuvwxyz01234"), "31 chars is too long")
	assert.True(t, IsSlug("abcdefghijklmnopqrstuvwxyz0123"))
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		loc  string
		want RouteProps
		ok   bool
	}{
		{"https://explorers.club/", RouteProps{Name: RouteHome}, true},
		{"https://explorers.club", RouteProps{Name: RouteHome}, true},
		{"/login", RouteProps{Name: RouteLogin}, true},
		{"/new/", RouteProps{Name: RouteNewRoom}, true},
		{"https://explorers.club/my-room?x=1", RouteProps{Name: RouteRoom, RoomSlug: "my-room"}, true},
		{"/My_Room", RouteProps{}, false},
		{"/a/b", RouteProps{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseLocation(tc.loc)
		assert.Equal(t, tc.ok, ok, tc.loc)
		assert.Equal(t, tc.want, got, tc.loc)
	}
}

func TestGameSchemas(t *testing.T) {
	assert.Equal(t, SchemaType("codebreakers_game"), GameCodebreakers.GameSchema())
	assert.Equal(t, SchemaType("banana_traders_player"), GameBananaTraders.PlayerSchema())
	assert.True(t, GameLittleVigilante.Valid())
	assert.False(t, GameID("trivia").Valid())
}

func TestCommandValidate(t *testing.T) {
	require.NoError(t, Command{Type: CmdInitialize, InitialLocation: "/"}.Validate())
	require.ErrorIs(t, Command{Type: CmdInitialize}.Validate(), ErrMissingField)
	require.Error(t, Command{
		Type:            CmdInitialize,
		InitialLocation: "/",
		AuthTokens:      &AuthTokens{AccessToken: "a"},
	}.Validate(), "refresh token is required")

	require.NoError(t, Command{Type: CmdNavigate, Route: &RouteProps{Name: RouteHome}}.Validate())
	require.ErrorIs(t, Command{Type: CmdNavigate, Route: &RouteProps{Name: RouteRoom}}.Validate(), ErrMissingField)
	require.Error(t, Command{Type: CmdNavigate, Route: &RouteProps{Name: RouteRoom, RoomSlug: "Bad Slug"}}.Validate())
	require.Error(t, Command{Type: CmdNavigate, Route: &RouteProps{Name: "Nowhere"}}.Validate())

	require.NoError(t, Command{Type: CmdSelectGame, GameID: GameCodebreakers}.Validate())
	require.Error(t, Command{Type: CmdSelectGame, GameID: "chess"}.Validate())

	require.NoError(t, Command{Type: CmdConfigureGame, Configuration: &GameConfiguration{
		GameID: GameBananaTraders,
		Data:   GameConfigurationData{NumPlayers: 4},
	}}.Validate())
	require.Error(t, Command{Type: CmdConfigureGame, Configuration: &GameConfiguration{
		GameID: "chess",
		Data:   GameConfigurationData{NumPlayers: 4},
	}}.Validate())

	require.ErrorIs(t, Command{Type: CmdReconnect}.Validate(), ErrMissingField)
	require.NoError(t, Command{Type: CmdLeave}.Validate())
	require.ErrorIs(t, Command{Type: CmdSend, Message: "   "}.Validate(), ErrMissingField)
	require.ErrorIs(t, Command{Type: "DANCE"}.Validate(), ErrUnknownCommand)
}

func TestLoginInputValidate(t *testing.T) {
	require.NoError(t, ValidateStruct(LoginInput{Email: "a@b.co", Password: "hunter2"}))
	require.Error(t, ValidateStruct(LoginInput{Email: "not-an-email", Password: "hunter2"}))
	require.Error(t, ValidateStruct(LoginInput{Email: "a@b.co", Password: "1234"}))
}
