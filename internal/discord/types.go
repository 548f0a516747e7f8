package discord

import (
	"encoding/json"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Опкоды gateway.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Intents, которые нужны боту.
const (
	IntentGuilds         = 1 << 0
	IntentGuildMembers   = 1 << 1
	IntentGuildMessages  = 1 << 9
	IntentDirectMessages = 1 << 12
	IntentMessageContent = 1 << 15

	DefaultIntents = IntentGuilds | IntentGuildMembers | IntentGuildMessages | IntentDirectMessages | IntentMessageContent
)

// Биты прав.
const (
	PermAdministrator int64 = 1 << 3
	PermManageGuild   int64 = 1 << 5
	PermViewChannel   int64 = 1 << 10
	PermSendMessages  int64 = 1 << 11
	PermConnect       int64 = 1 << 20
)

const (
	channelTypeText  = 0
	channelTypeDM    = 1
	channelTypeVoice = 2

	overwriteRole   = 0
	overwriteMember = 1

	componentRow       = 1
	componentButton    = 2
	componentTextInput = 4

	interactionComponent   = 3
	interactionModalSubmit = 5

	callbackMessage         = 4
	callbackDeferredMessage = 5
	callbackDeferredUpdate  = 6
	callbackUpdate          = 7
	callbackModal           = 9

	flagEphemeral = 1 << 6

	// коды ошибок REST
	codeUnknownChannel = 10003
	codeUnknownMember  = 10007
	codeUnknownMessage = 10008
	codeUnknownUser    = 10013
	codeCannotDM       = 50007
)

// Perms — битовая маска прав; Discord передаёт её строкой.
type Perms int64

func (p *Perms) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		*p = Perms(n)
		return nil
	}
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*p = Perms(n)
	return nil
}

func (p Perms) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(p), 10))
}

func (p Perms) Has(bit int64) bool { return int64(p)&bit == bit }

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identify struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

type User struct {
	ID         snowflake.ID `json:"id"`
	Username   string       `json:"username"`
	GlobalName string       `json:"global_name,omitempty"`
	Bot        bool         `json:"bot,omitempty"`
}

// Member — участник сервера. В событиях и взаимодействиях User может
// отсутствовать (тогда он лежит рядом).
type Member struct {
	User        *User          `json:"user,omitempty"`
	Nick        string         `json:"nick,omitempty"`
	Roles       []snowflake.ID `json:"roles"`
	Permissions *Perms         `json:"permissions,omitempty"`
}

// Ready — первое событие сессии.
type Ready struct {
	User             User   `json:"user"`
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// MemberEvent — GUILD_MEMBER_ADD и GUILD_MEMBER_UPDATE.
type MemberEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	Member
}

// MemberRemove — GUILD_MEMBER_REMOVE.
type MemberRemove struct {
	GuildID snowflake.ID `json:"guild_id"`
	User    User         `json:"user"`
}

// MessageCreate — сообщение в канале или ЛС.
type MessageCreate struct {
	ID        snowflake.ID  `json:"id"`
	ChannelID snowflake.ID  `json:"channel_id"`
	GuildID   *snowflake.ID `json:"guild_id,omitempty"`
	Author    User          `json:"author"`
	Member    *Member       `json:"member,omitempty"`
	Content   string        `json:"content"`
	Mentions  []User        `json:"mentions"`
}

// InGuild — сообщение пришло с сервера, а не из ЛС.
func (m MessageCreate) InGuild() bool { return m.GuildID != nil && *m.GuildID != 0 }

type Interaction struct {
	ID            snowflake.ID     `json:"id"`
	ApplicationID snowflake.ID     `json:"application_id"`
	Type          int              `json:"type"`
	Token         string           `json:"token"`
	GuildID       *snowflake.ID    `json:"guild_id,omitempty"`
	ChannelID     *snowflake.ID    `json:"channel_id,omitempty"`
	Member        *Member          `json:"member,omitempty"`
	User          *User            `json:"user,omitempty"`
	Message       *messageRef      `json:"message,omitempty"`
	Locale        string           `json:"locale,omitempty"`
	Data          *interactionData `json:"data,omitempty"`
}

type messageRef struct {
	ID        snowflake.ID `json:"id"`
	ChannelID snowflake.ID `json:"channel_id"`
}

type interactionData struct {
	CustomID   string      `json:"custom_id"`
	Components []component `json:"components,omitempty"`
}

// Actor — кто нажал кнопку.
func (i Interaction) Actor() User {
	if i.Member != nil && i.Member.User != nil {
		return *i.Member.User
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

func (i Interaction) InGuild() bool { return i.GuildID != nil && *i.GuildID != 0 }

// CustomID — custom_id кнопки или модального окна.
func (i Interaction) CustomID() string {
	if i.Data == nil {
		return ""
	}
	return i.Data.CustomID
}

// IsComponent — нажатие кнопки или отправка формы.
func (i Interaction) IsComponent() bool {
	return i.Type == interactionComponent || i.Type == interactionModalSubmit
}

// Values — значения полей отправленной формы по custom_id.
func (i Interaction) Values() map[string]string {
	out := map[string]string{}
	if i.Data == nil {
		return out
	}
	var walk func([]component)
	walk = func(cs []component) {
		for _, c := range cs {
			if c.Type == componentTextInput && c.CustomID != "" {
				out[c.CustomID] = c.Value
			}
			walk(c.Components)
		}
	}
	walk(i.Data.Components)
	return out
}

// MessageRef — сообщение, на котором нажата кнопка.
func (i Interaction) MessageRef() (channelID, messageID snowflake.ID) {
	if i.Message == nil {
		return 0, 0
	}
	return i.Message.ChannelID, i.Message.ID
}

type role struct {
	ID          snowflake.ID `json:"id"`
	Permissions Perms        `json:"permissions"`
}

type guild struct {
	ID      snowflake.ID `json:"id"`
	OwnerID snowflake.ID `json:"owner_id"`
	Roles   []role       `json:"roles"`
}

type overwrite struct {
	ID    snowflake.ID `json:"id"`
	Type  int          `json:"type"`
	Allow Perms        `json:"allow"`
	Deny  Perms        `json:"deny"`
}

type channel struct {
	ID       snowflake.ID  `json:"id"`
	Type     int           `json:"type"`
	Name     string        `json:"name"`
	ParentID *snowflake.ID `json:"parent_id,omitempty"`
}

type createChannel struct {
	Name       string       `json:"name"`
	Type       int          `json:"type"`
	ParentID   snowflake.ID `json:"parent_id,omitempty"`
	Topic      string       `json:"topic,omitempty"`
	Overwrites []overwrite  `json:"permission_overwrites"`
}

type modifyChannel struct {
	Name     string        `json:"name,omitempty"`
	ParentID *snowflake.ID `json:"parent_id,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type emoji struct {
	ID   snowflake.ID `json:"id,omitempty"`
	Name string       `json:"name"`
}

type component struct {
	Type        int         `json:"type"`
	Style       int         `json:"style,omitempty"`
	Label       string      `json:"label,omitempty"`
	Emoji       *emoji      `json:"emoji,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	URL         string      `json:"url,omitempty"`
	Disabled    bool        `json:"disabled,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Value       string      `json:"value,omitempty"`
	MinLength   int         `json:"min_length,omitempty"`
	MaxLength   int         `json:"max_length,omitempty"`
	Required    *bool       `json:"required,omitempty"`
	Components  []component `json:"components,omitempty"`
}

type allowedMentions struct {
	Parse []string       `json:"parse"`
	Users []snowflake.ID `json:"users,omitempty"`
	Roles []snowflake.ID `json:"roles,omitempty"`
}

type message struct {
	ID              snowflake.ID     `json:"id,omitempty"`
	ChannelID       snowflake.ID     `json:"channel_id,omitempty"`
	Content         string           `json:"content,omitempty"`
	Embeds          []embed          `json:"embeds,omitempty"`
	Components      []component      `json:"components,omitempty"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
	Flags           int              `json:"flags,omitempty"`
}

// messageEdit — замена содержимого сообщения. Поля уходят всегда:
// пустой список components убирает старые кнопки.
type messageEdit struct {
	Content         string           `json:"content"`
	Embeds          []embed          `json:"embeds"`
	Components      []component      `json:"components"`
	AllowedMentions *allowedMentions `json:"allowed_mentions,omitempty"`
}

type deferredData struct {
	Flags int `json:"flags,omitempty"`
}

type modal struct {
	CustomID   string      `json:"custom_id"`
	Title      string      `json:"title"`
	Components []component `json:"components"`
}

type interactionResponse struct {
	Type int `json:"type"`
	Data any `json:"data,omitempty"`
}
