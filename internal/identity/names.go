package identity

import "math/rand"

var (
	firstNames = []string{
		"Alex", "Ariel", "Bailey", "Blair", "Cameron", "Casey", "Charlie", "Dakota",
		"Drew", "Eden", "Emerson", "Finley", "Harper", "Hayden", "Jamie", "Jordan",
		"Kendall", "Logan", "Morgan", "Parker", "Peyton", "Quinn", "Reese", "Riley",
		"Rowan", "Sage", "Skyler", "Taylor",
	}
	lastNames = []string{
		"Abbott", "Barker", "Bennett", "Carver", "Dalton", "Ellis", "Fletcher", "Garner",
		"Hale", "Hayes", "Keller", "Lawson", "Mercer", "Nolan", "Palmer", "Porter",
		"Quincy", "Reed", "Sawyer", "Shaw", "Sutton", "Thatcher", "Vaughn", "Walsh",
		"Warren", "Wells", "Whitaker", "Young",
	}
)

func randomName() (string, string) {
	return firstNames[rand.Intn(len(firstNames))], lastNames[rand.Intn(len(lastNames))]
}
