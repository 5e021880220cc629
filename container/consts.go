package container

// initArg marks the re-exec'd child: "/proc/self/exe init".
const initArg = "init"

// PathEnv is the PATH seen by the contained command.
const PathEnv = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
