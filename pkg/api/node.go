package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/botflow/engine/pkg/util"
)

type (
	// NodeType is the closed tag set of step behaviors
	NodeType string

	// Position carries editor canvas coordinates, display only
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Node is one typed step in a flow graph. Exactly one of the config
	// pointers is set, matching the node's type tag
	Node struct {
		Message   *MessageConfig
		Keyboard  *KeyboardConfig
		Condition *ConditionConfig
		HTTP      *HTTPConfig
		Delay     *DelayConfig
		Variable  *VariableConfig
		Random    *RandomConfig
		Database  *DatabaseConfig
		File      *FileConfig
		Group     *GroupConfig
		AI        *AIConfig
		Script    *ScriptConfig
		ID        NodeID
		Type      NodeType
		Position  Position
	}

	// MessageConfig renders templated text and sends it to the user
	MessageConfig struct {
		Text       string `json:"text"`
		FormatMode string `json:"format_mode,omitempty"`
	}

	// Button is one keyboard option presented to the user
	Button struct {
		Text         string `json:"text"`
		CallbackData string `json:"callback_data,omitempty"`
		URL          string `json:"url,omitempty"`
	}

	// KeyboardConfig sends text with a button set and awaits the reply
	KeyboardConfig struct {
		Text       string   `json:"text"`
		FormatMode string   `json:"format_mode,omitempty"`
		Buttons    []Button `json:"buttons"`
		Inline     bool     `json:"inline,omitempty"`
	}

	// Operator is the comparison applied by a condition node
	Operator string

	// ConditionConfig evaluates an operator against the inbound text or a
	// named session variable and branches on the result
	ConditionConfig struct {
		Operator Operator `json:"operator"`
		Value    string   `json:"value"`
		Variable string   `json:"variable,omitempty"`
	}

	// HTTPConfig issues an outbound call and maps the response into
	// session variables
	HTTPConfig struct {
		URL             string            `json:"url"`
		Method          string            `json:"method"`
		Headers         map[string]string `json:"headers,omitempty"`
		Body            string            `json:"body,omitempty"`
		ResponseMapping map[string]string `json:"response_mapping,omitempty"`
		TimeoutMs       int64             `json:"timeout_ms,omitempty"`
	}

	// DelayUnit is the time unit of a delay node
	DelayUnit string

	// DelayConfig suspends the session and resumes it after a duration
	DelayConfig struct {
		Amount int64     `json:"amount"`
		Unit   DelayUnit `json:"unit"`
	}

	// VarOp is the mutation a variable node applies
	VarOp string

	// VariableConfig mutates one named session variable
	VariableConfig struct {
		Name      string `json:"name"`
		Value     string `json:"value,omitempty"`
		Operation VarOp  `json:"operation"`
		Scope     string `json:"scope,omitempty"`
	}

	// RandomOption is one weighted choice of a random node
	RandomOption struct {
		Value  string `json:"value"`
		Weight int    `json:"weight"`
	}

	// RandomConfig selects a weighted option, stores it in a variable, and
	// branches on the chosen value
	RandomConfig struct {
		Options  []RandomOption `json:"options"`
		Variable string         `json:"variable"`
	}

	// DBOp is the constrained operation a database node performs
	DBOp string

	// DatabaseConfig runs a constrained CRUD operation against the tenant
	// datastore collaborator
	DatabaseConfig struct {
		Operation DBOp              `json:"operation"`
		Table     string            `json:"table"`
		Filter    string            `json:"filter,omitempty"`
		Values    map[string]string `json:"values,omitempty"`
		Variable  string            `json:"variable,omitempty"`
	}

	// FileConfig sends a document from blob storage or a URL
	FileConfig struct {
		Source   string `json:"source"`
		Filename string `json:"filename"`
		Caption  string `json:"caption,omitempty"`
	}

	// GroupAction is the asynchronous group operation a group node enqueues
	GroupAction string

	// GroupConfig enqueues a long-running group action on the job queue
	GroupConfig struct {
		Action  GroupAction       `json:"action"`
		Group   string            `json:"group"`
		Payload map[string]string `json:"payload,omitempty"`
	}

	// AIConfig calls the model-inference collaborator, optionally
	// streaming tokens back through the transport
	AIConfig struct {
		Prompt   string `json:"prompt"`
		Model    string `json:"model,omitempty"`
		System   string `json:"system,omitempty"`
		Variable string `json:"variable,omitempty"`
		Stream   bool   `json:"stream,omitempty"`
	}

	// ScriptConfig runs a sandboxed script against the session variables
	ScriptConfig struct {
		Language string `json:"language"`
		Script   string `json:"script"`
		Variable string `json:"variable,omitempty"`
	}

	nodeWire struct {
		ID       NodeID          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data,omitempty"`
	}
)

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeMessage   NodeType = "message"
	NodeTypeKeyboard  NodeType = "keyboard"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAPI       NodeType = "api"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeVariable  NodeType = "variable"
	NodeTypeRandom    NodeType = "random"
	NodeTypeDatabase  NodeType = "database"
	NodeTypeFile      NodeType = "file"
	NodeTypeGroup     NodeType = "group"
	NodeTypeAI        NodeType = "ai"
	NodeTypeScript    NodeType = "script"
	NodeTypeEnd       NodeType = "end"
)

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not-equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts-with"
	OpExists     Operator = "exists"
)

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

const (
	VarOpSet       VarOp = "set"
	VarOpAppend    VarOp = "append"
	VarOpPrepend   VarOp = "prepend"
	VarOpIncrement VarOp = "increment"
	VarOpDecrement VarOp = "decrement"
)

const (
	DBSelect DBOp = "select"
	DBInsert DBOp = "insert"
	DBUpdate DBOp = "update"
	DBDelete DBOp = "delete"
	DBCount  DBOp = "count"
)

const (
	GroupCreate GroupAction = "create"
	GroupJoin   GroupAction = "join"
	GroupLeave  GroupAction = "leave"
	GroupDo     GroupAction = "action"
)

const (
	FormatModePlain    = "plain"
	FormatModeHTML     = "html"
	FormatModeMarkdown = "markdown"

	ScriptLangLua = "lua"
)

// Branch labels produced by multi-outcome nodes
const (
	LabelTrue    Label = "true"
	LabelFalse   Label = "false"
	LabelFailure Label = "failure"
)

var (
	ErrNodeIDEmpty           = errors.New("node ID empty")
	ErrInvalidNodeType       = errors.New("invalid node type")
	ErrNodeConfigMissing     = errors.New("node config missing")
	ErrMessageTextEmpty      = errors.New("message text empty")
	ErrKeyboardNoButtons     = errors.New("keyboard has no buttons")
	ErrButtonTextEmpty       = errors.New("button text empty")
	ErrInvalidOperator       = errors.New("invalid condition operator")
	ErrURLEmpty              = errors.New("api url empty")
	ErrInvalidMethod         = errors.New("invalid api method")
	ErrInvalidDelayAmount    = errors.New("delay amount must be positive")
	ErrInvalidDelayUnit      = errors.New("invalid delay unit")
	ErrVariableNameEmpty     = errors.New("variable name empty")
	ErrInvalidVarOp          = errors.New("invalid variable operation")
	ErrRandomNoOptions       = errors.New("random has no options")
	ErrInvalidRandomWeight   = errors.New("random weight must be positive")
	ErrInvalidDBOp           = errors.New("invalid database operation")
	ErrTableEmpty            = errors.New("database table empty")
	ErrFileSourceEmpty       = errors.New("file source empty")
	ErrInvalidGroupAction    = errors.New("invalid group action")
	ErrGroupEmpty            = errors.New("group name empty")
	ErrPromptEmpty           = errors.New("ai prompt empty")
	ErrScriptEmpty           = errors.New("script empty")
	ErrScriptLanguageEmpty   = errors.New("script language empty")
	ErrInvalidScriptLanguage = errors.New("invalid script language")
)

var (
	validNodeTypes = util.SetOf(
		NodeTypeStart, NodeTypeMessage, NodeTypeKeyboard, NodeTypeCondition,
		NodeTypeAPI, NodeTypeDelay, NodeTypeVariable, NodeTypeRandom,
		NodeTypeDatabase, NodeTypeFile, NodeTypeGroup, NodeTypeAI,
		NodeTypeScript, NodeTypeEnd,
	)

	validOperators = util.SetOf(
		OpEquals, OpNotEquals, OpContains, OpStartsWith, OpExists,
	)

	validDelayUnits = util.SetOf(
		UnitSeconds, UnitMinutes, UnitHours, UnitDays,
	)

	validVarOps = util.SetOf(
		VarOpSet, VarOpAppend, VarOpPrepend, VarOpIncrement, VarOpDecrement,
	)

	validDBOps = util.SetOf(DBSelect, DBInsert, DBUpdate, DBDelete, DBCount)

	validGroupActions = util.SetOf(
		GroupCreate, GroupJoin, GroupLeave, GroupDo,
	)

	validMethods = util.SetOf("GET", "POST", "PUT", "PATCH", "DELETE")

	validScriptLanguages = util.SetOf(ScriptLangLua)

	delayUnitDurations = map[DelayUnit]time.Duration{
		UnitSeconds: time.Second,
		UnitMinutes: time.Minute,
		UnitHours:   time.Hour,
		UnitDays:    24 * time.Hour,
	}
)

// Duration converts the configured amount and unit into a time.Duration
func (d *DelayConfig) Duration() time.Duration {
	return time.Duration(d.Amount) * delayUnitDurations[d.Unit]
}

// Validate checks the node's type tag and its type-specific config.
// Definition errors are rejected here, at flow-save time, so the executor
// never sees them
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrNodeIDEmpty
	}
	if !validNodeTypes.Contains(n.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidNodeType, n.Type)
	}

	switch n.Type {
	case NodeTypeStart, NodeTypeEnd:
		return nil
	case NodeTypeMessage:
		return n.validateMessage()
	case NodeTypeKeyboard:
		return n.validateKeyboard()
	case NodeTypeCondition:
		return n.validateCondition()
	case NodeTypeAPI:
		return n.validateHTTP()
	case NodeTypeDelay:
		return n.validateDelay()
	case NodeTypeVariable:
		return n.validateVariable()
	case NodeTypeRandom:
		return n.validateRandom()
	case NodeTypeDatabase:
		return n.validateDatabase()
	case NodeTypeFile:
		return n.validateFile()
	case NodeTypeGroup:
		return n.validateGroup()
	case NodeTypeAI:
		return n.validateAI()
	case NodeTypeScript:
		return n.validateScript()
	}
	return nil
}

func (n *Node) validateMessage() error {
	if n.Message == nil {
		return configMissing(n)
	}
	if n.Message.Text == "" {
		return nodeErr(n, ErrMessageTextEmpty)
	}
	return nil
}

func (n *Node) validateKeyboard() error {
	if n.Keyboard == nil {
		return configMissing(n)
	}
	if n.Keyboard.Text == "" {
		return nodeErr(n, ErrMessageTextEmpty)
	}
	if len(n.Keyboard.Buttons) == 0 {
		return nodeErr(n, ErrKeyboardNoButtons)
	}
	for _, b := range n.Keyboard.Buttons {
		if b.Text == "" {
			return nodeErr(n, ErrButtonTextEmpty)
		}
	}
	return nil
}

func (n *Node) validateCondition() error {
	if n.Condition == nil {
		return configMissing(n)
	}
	if !validOperators.Contains(n.Condition.Operator) {
		return fmt.Errorf("%w: %s", ErrInvalidOperator, n.Condition.Operator)
	}
	return nil
}

func (n *Node) validateHTTP() error {
	if n.HTTP == nil {
		return configMissing(n)
	}
	if n.HTTP.URL == "" {
		return nodeErr(n, ErrURLEmpty)
	}
	if n.HTTP.Method != "" && !validMethods.Contains(n.HTTP.Method) {
		return fmt.Errorf("%w: %s", ErrInvalidMethod, n.HTTP.Method)
	}
	return nil
}

func (n *Node) validateDelay() error {
	if n.Delay == nil {
		return configMissing(n)
	}
	if n.Delay.Amount <= 0 {
		return nodeErr(n, ErrInvalidDelayAmount)
	}
	if !validDelayUnits.Contains(n.Delay.Unit) {
		return fmt.Errorf("%w: %s", ErrInvalidDelayUnit, n.Delay.Unit)
	}
	return nil
}

func (n *Node) validateVariable() error {
	if n.Variable == nil {
		return configMissing(n)
	}
	if n.Variable.Name == "" {
		return nodeErr(n, ErrVariableNameEmpty)
	}
	if !validVarOps.Contains(n.Variable.Operation) {
		return fmt.Errorf("%w: %s", ErrInvalidVarOp, n.Variable.Operation)
	}
	return nil
}

func (n *Node) validateRandom() error {
	if n.Random == nil {
		return configMissing(n)
	}
	if len(n.Random.Options) == 0 {
		return nodeErr(n, ErrRandomNoOptions)
	}
	if n.Random.Variable == "" {
		return nodeErr(n, ErrVariableNameEmpty)
	}
	for _, opt := range n.Random.Options {
		if opt.Weight <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidRandomWeight, opt.Value)
		}
	}
	return nil
}

func (n *Node) validateDatabase() error {
	if n.Database == nil {
		return configMissing(n)
	}
	if !validDBOps.Contains(n.Database.Operation) {
		return fmt.Errorf("%w: %s", ErrInvalidDBOp, n.Database.Operation)
	}
	if n.Database.Table == "" {
		return nodeErr(n, ErrTableEmpty)
	}
	return nil
}

func (n *Node) validateFile() error {
	if n.File == nil {
		return configMissing(n)
	}
	if n.File.Source == "" {
		return nodeErr(n, ErrFileSourceEmpty)
	}
	return nil
}

func (n *Node) validateGroup() error {
	if n.Group == nil {
		return configMissing(n)
	}
	if !validGroupActions.Contains(n.Group.Action) {
		return fmt.Errorf("%w: %s", ErrInvalidGroupAction, n.Group.Action)
	}
	if n.Group.Group == "" {
		return nodeErr(n, ErrGroupEmpty)
	}
	return nil
}

func (n *Node) validateAI() error {
	if n.AI == nil {
		return configMissing(n)
	}
	if n.AI.Prompt == "" {
		return nodeErr(n, ErrPromptEmpty)
	}
	return nil
}

func (n *Node) validateScript() error {
	if n.Script == nil {
		return configMissing(n)
	}
	if n.Script.Language == "" {
		return nodeErr(n, ErrScriptLanguageEmpty)
	}
	if !validScriptLanguages.Contains(n.Script.Language) {
		return fmt.Errorf(
			"%w: %s", ErrInvalidScriptLanguage, n.Script.Language,
		)
	}
	if n.Script.Script == "" {
		return nodeErr(n, ErrScriptEmpty)
	}
	return nil
}

// MarshalJSON renders the node in the editor wire shape
// {id, type, position, data}
func (n *Node) MarshalJSON() ([]byte, error) {
	w := nodeWire{ID: n.ID, Type: n.Type, Position: n.Position}

	cfg := n.config()
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the editor wire shape, selecting the config struct
// by the node's type tag
func (n *Node) UnmarshalJSON(data []byte) error {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	n.ID = w.ID
	n.Type = w.Type
	n.Position = w.Position
	if len(w.Data) == 0 {
		return nil
	}

	cfg := n.newConfig()
	if cfg == nil {
		return nil
	}
	return json.Unmarshal(w.Data, cfg)
}

func (n *Node) config() any {
	switch n.Type {
	case NodeTypeMessage:
		if n.Message != nil {
			return n.Message
		}
	case NodeTypeKeyboard:
		if n.Keyboard != nil {
			return n.Keyboard
		}
	case NodeTypeCondition:
		if n.Condition != nil {
			return n.Condition
		}
	case NodeTypeAPI:
		if n.HTTP != nil {
			return n.HTTP
		}
	case NodeTypeDelay:
		if n.Delay != nil {
			return n.Delay
		}
	case NodeTypeVariable:
		if n.Variable != nil {
			return n.Variable
		}
	case NodeTypeRandom:
		if n.Random != nil {
			return n.Random
		}
	case NodeTypeDatabase:
		if n.Database != nil {
			return n.Database
		}
	case NodeTypeFile:
		if n.File != nil {
			return n.File
		}
	case NodeTypeGroup:
		if n.Group != nil {
			return n.Group
		}
	case NodeTypeAI:
		if n.AI != nil {
			return n.AI
		}
	case NodeTypeScript:
		if n.Script != nil {
			return n.Script
		}
	}
	return nil
}

func (n *Node) newConfig() any {
	switch n.Type {
	case NodeTypeMessage:
		n.Message = &MessageConfig{}
		return n.Message
	case NodeTypeKeyboard:
		n.Keyboard = &KeyboardConfig{}
		return n.Keyboard
	case NodeTypeCondition:
		n.Condition = &ConditionConfig{}
		return n.Condition
	case NodeTypeAPI:
		n.HTTP = &HTTPConfig{}
		return n.HTTP
	case NodeTypeDelay:
		n.Delay = &DelayConfig{}
		return n.Delay
	case NodeTypeVariable:
		n.Variable = &VariableConfig{}
		return n.Variable
	case NodeTypeRandom:
		n.Random = &RandomConfig{}
		return n.Random
	case NodeTypeDatabase:
		n.Database = &DatabaseConfig{}
		return n.Database
	case NodeTypeFile:
		n.File = &FileConfig{}
		return n.File
	case NodeTypeGroup:
		n.Group = &GroupConfig{}
		return n.Group
	case NodeTypeAI:
		n.AI = &AIConfig{}
		return n.AI
	case NodeTypeScript:
		n.Script = &ScriptConfig{}
		return n.Script
	}
	return nil
}

func configMissing(n *Node) error {
	return fmt.Errorf("%w: %s %s", ErrNodeConfigMissing, n.Type, n.ID)
}

func nodeErr(n *Node, err error) error {
	return fmt.Errorf("%w: %s", err, n.ID)
}
