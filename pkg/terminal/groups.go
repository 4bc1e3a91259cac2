package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	breakCmds
	statusCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Manipulating hardware breakpoints", breakCmds},
	{"Trap status", statusCmds},
	{"Viewing the debug registers", dataCmds},
	{"Other commands", otherCmds},
}
