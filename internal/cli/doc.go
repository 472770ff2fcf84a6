// Package cli provides the keeper command-line client.
//
// Commands can be given on the command line (keeper list) or typed into an
// interactive REPL started when no command is given. Both paths go through
// the same dispatcher.
//
//	add [-generate] [-plain] [-totp SEED] <service> <username>
//	list [-all]
//	show <id>
//	rename <id> <new-username>
//	passwd [-generate] [-plain] <id>
//	comment <id>
//	otp <id> <seed>
//	otp-remove <id>
//	delete <id>
//	restore <id>
//	purge <id>
//	generate [-plain]
//
// An id may be abbreviated to any unique prefix.
package cli
