package bot

// Callback data of the inline buttons.
const (
	CallbackConfirmPhone     = "confirm_phone"
	CallbackChangePhone      = "change_phone"
	CallbackAdminChangePhone = "admin_change_phone"
	CallbackMainMenu         = "main_menu"
)

const commandStart = "/start"

const (
	textWelcome           = "👋 Welcome! Glad to see you."
	textAskPhone          = "Please enter your phone number in the format '7xxxxxxxxxx'."
	textBadPhone          = "Invalid format. Please enter the number as '7xxxxxxxxxx'."
	textPhoneEntered      = "Your phone number: %s"
	textConfirmPrompt     = "Is that correct?"
	textConfirmYes        = "Yes, correct!"
	textConfirmEdit       = "Change"
	textPhoneSaved        = "Your phone number %s has been saved."
	textPhoneTaken        = "This phone number is already registered. Please enter another one."
	textAlreadyRegistered = "You are already registered."
	textSaveFailed        = "Could not save your number right now. Please press the button again in a moment."
	textUseButtons        = "Please use the buttons above to confirm or change the number."
	textAdminNewClient    = "New client registered with phone: %s (tg_id: %d)"
	textTryLater          = "Something went wrong. Please try again later."
	textStalePrompt       = "This prompt is no longer active."
	textNotAllowed        = "Not allowed."
	textClientMenu        = "Welcome to the main menu!"
	textAdminMenu         = "Welcome to the admin panel!"
	textChooseAction      = "Choose an action:"
	textAdminChangeBtn    = "Change phone"
	textAskOldPhone       = "Enter the client's current phone number in the format '7xxxxxxxxxx' (or 'x' to cancel and return to the menu):"
	textBadOldPhone       = "Invalid format. Try again or enter 'x' to exit."
	textClientNotFound    = "No client with this phone number was found. Enter another number or 'x' to exit."
	textAskNewPhone       = "Client with phone %s found!\nNow enter the new phone number in the format '7xxxxxxxxxx' (or 'x' to exit):"
	textBadNewPhone       = "Invalid format of the new number. Try again or enter 'x' to exit."
	textNewPhoneTaken     = "This number already belongs to another client. Enter another number or 'x' to exit."
	textClientGone        = "The client no longer exists."
	textPhoneChanged      = "Phone number changed from %s to %s."
	textClientNotified    = "Your phone number has been changed to %s."
	textNotifyFailed      = "Could not notify the client about the change."
)
