package config

import "time"

const (
	// WebSocket
	WriteWait       = 10 * time.Second
	PongWait        = 60 * time.Second
	PingPeriod      = (PongWait * 9) / 10
	MaxMessageSize  = 512 * 1024
	SendBufferSize  = 256
	ReadBufferSize  = 1024
	WriteBufferSize = 1024

	// Execution
	DefaultExecTimeout    = 10 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
	DefaultMaxConcurrent  = 8
	ProcessWaitDelay      = 500 * time.Millisecond
	NoOutputPlaceholder   = "Program executed successfully with no output."
	NoSyntaxErrorsMessage = "No syntax errors found."
	DefaultJavaEntryClass = "Main"
	WorkspaceDirPrefix    = "run-*"
	WorkspaceSourcePrefix = "code_"

	// Presence
	DefaultPairSessionIdleTTL = 30 * time.Minute
	PairSweepInterval         = time.Minute
	DisplayNamePrefix         = "User"
	GeneratedGroupNamePrefix  = "Study Group "

	// Snippet store
	DriverSQLite        = "sqlite"
	DriverPostgres      = "postgres"
	DefaultSQLiteDSN    = "file::memory:?cache=shared"
	SnippetIDLength     = 21
	DefaultSnippetTitle = "Untitled"
)

const DefaultDocumentLanguage = "javascript"

const PairWelcomeCode = `// Welcome to the pair programming session!
// Everything typed here is shared with your partner in real time.

function greet(name) {
  return "Hello, " + name + "!";
}

console.log(greet("pair"));
`

const GroupWelcomeCode = `// Welcome to the study group!
// Edit together, ask questions in the side panel, and run the code when ready.

console.log("Hello, study group!");
`
