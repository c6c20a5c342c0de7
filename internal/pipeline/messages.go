package pipeline

import (
	"fmt"

	"github.com/hochfrequenz/linkbot/internal/domain"
)

// Message pairs the technical text of an event with its simplified,
// user-facing text. User may be empty for diagnostics only.
type Message struct {
	Technical string
	User      string
}

func (m Message) Info() domain.Entry    { return domain.Info(m.Technical, m.User) }
func (m Message) Success() domain.Entry { return domain.Success(m.Technical, m.User) }
func (m Message) Warning() domain.Entry { return domain.Warning(m.Technical, m.User) }
func (m Message) Error() domain.Entry   { return domain.Error(m.Technical, m.User) }

// Lifecycle
var (
	MsgIdle           = Message{"Bot is idle", "Bot is idle"}
	MsgAlreadyRunning = Message{"Bot is already running", "Bot is already active"}
	MsgNeedsReset     = Message{"Bot failed and must be stopped before it can start again", "Stop the bot before starting again"}
	MsgNotRunning     = Message{"Bot is not running", "Bot is not active"}
	MsgAlreadyStop    = Message{"Bot is already stopping", "Bot is already stopping"}
	MsgStarting       = Message{"Starting bot...", "Starting bot..."}
	MsgRunning        = Message{"Bot is running", "Bot is running"}
	MsgStopping       = Message{"Stopping bot", "Stopping bot..."}
	MsgStopped        = Message{"Bot stopped successfully", "Bot stopped"}
	MsgStopTimedOut   = Message{"Background steps did not stop in time, closing browser anyway", ""}
	MsgPageClosed     = Message{"Browser page closed", ""}
	MsgBrowserClosed  = Message{"Browser closed", "Browser closed"}
	MsgUnknownError   = Message{"Unknown error", "An unknown error occurred"}
)

// Browser and navigation
var (
	MsgLaunchingBrowser = Message{"Launching Chrome browser", ""}
	MsgBrowserLaunched  = Message{"Browser launched successfully", "Browser opened"}
	MsgUserAgentSet     = Message{"User agent set", ""}
	MsgNavigatingTarget = Message{"Navigating to target site...", "Opening site..."}
	MsgTargetLoaded     = Message{"Target page loaded successfully", "Site opened successfully"}
)

// Federated login
var (
	MsgLookingForLoginButton = Message{"Looking for Gmail login button", "Searching for Gmail login option..."}
	MsgLookingForFrame       = Message{"Looking for Google Sign-In iframe", "Searching for login options..."}
	MsgFoundGoogleFrame      = Message{"Found Google Sign-In iframe", "Found Google login"}
	MsgLookingInFrame        = Message{"Looking for button inside iframe", ""}
	MsgFrameFallback         = Message{"Google iframe not found, trying regular selectors", "Trying alternative login method..."}
	MsgLoginButtonNotFound   = Message{"Gmail login button not found on page", "Could not find Gmail login option"}
	MsgLoginButtonClicked    = Message{"Gmail login button clicked", "Proceeding with Gmail login..."}
	MsgAlreadySignedIn       = Message{"Session already signed in, skipping federated login", "Already signed in"}
	MsgWaitingForAccount     = Message{"Waiting for user to manually select Google account", "Please select your Google account in the browser"}
	MsgPopupNotOpened        = Message{"No Google login window appeared, continuing", ""}
	MsgPopupClosed           = Message{"Google login window closed", "Google login finished"}
	MsgPopupStillOpen        = Message{"Google login window still open after wait limit", "Google login is still open"}
)

// Sign-in verification and feed
var (
	MsgCheckingSignIn    = Message{"Checking for signed-in session", "Checking login status..."}
	MsgSignInVerified    = Message{"Signed-in session verified", "Logged in"}
	MsgSignInBestEffort  = Message{"Address looks signed in but no page signal confirmed it, assuming signed in", "Probably logged in"}
	MsgSignInPending     = Message{"Sign-in not detected before deadline", "Still waiting for login"}
	MsgScrollStarted     = Message{"Starting feed scroll", "Browsing feed..."}
	MsgScrollFinished    = Message{"Feed scroll finished", "Finished browsing feed"}
	MsgAwaitingHumanStep = Message{"Waiting for the user to finish signing in", "Please finish signing in in the browser window"}
)

func NavigatingTo(url string) Message {
	return Message{Technical: "Navigating to " + url}
}

func NavigationSucceeded(url string) Message {
	return Message{Technical: "Successfully navigated to " + url}
}

func ButtonFoundWithSelector(selector string) Message {
	return Message{Technical: "Gmail button found with selector: " + selector, User: "Gmail button found"}
}

func ClickFailed(err error) Message {
	return Message{Technical: "Failed to click Gmail button: " + err.Error(), User: "Failed to proceed with Gmail login"}
}

func SignInAt(signal, url string) Message {
	return Message{Technical: fmt.Sprintf("Signed-in signal %s present at %s", signal, url)}
}

func Scrolled(times int) Message {
	return Message{Technical: fmt.Sprintf("Scrolled feed %d times", times)}
}

// Step progress
func StepAttempting(step string) Message { return Message{Technical: "Attempting step: " + step} }
func StepSucceeded(step string) Message  { return Message{Technical: "Step succeeded: " + step} }
func StepSkipped(step string) Message {
	return Message{Technical: "Skipping step " + step + ": preconditions not met"}
}
func StepFailed(step string, err error) Message {
	return Message{Technical: fmt.Sprintf("Step failed: %s: %v", step, err)}
}

// BotStatus describes a lifecycle transition
func BotStatus(phase domain.Phase, message string) Message {
	text := fmt.Sprintf("[Bot Status] %s: %s", phase, message)
	return Message{Technical: text, User: text}
}

func StartError(err error) Message {
	return Message{Technical: "Failed to start bot: " + err.Error(), User: "Failed to start: " + UserReason(err)}
}

func RunError(err error) Message {
	return Message{Technical: "Bot run failed: " + err.Error(), User: "Bot stopped working: " + UserReason(err)}
}

func CleanupError(err error) Message {
	return Message{Technical: "Error during cleanup: " + err.Error()}
}
