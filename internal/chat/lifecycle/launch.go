package lifecycle

import (
	"fmt"

	"github.com/agenthub/hub/internal/store"
)

// launchArgs assembles the agent_cli command vector for starting a chat
// (§4.E step 3). credentialArgs/sshArgs are pre-resolved from the vault so
// this function stays a pure, easily tested transform.
func launchArgs(chat *store.Chat, workspace, tag, agentCLIPath string, credentialArgs, sshArgs []string, hubBaseURL, artifactToken, readyACKGUID string) []string {
	args := []string{
		"--project", workspace,
		"--config-file",
		"--snapshot-image-tag", tag,
	}
	args = append(args, credentialArgs...)
	args = append(args, sshArgs...)

	for _, m := range chat.ROMounts {
		args = append(args, "--ro-mount", m.HostPath+":"+m.ContainerPath)
	}
	for _, m := range chat.RWMounts {
		args = append(args, "--rw-mount", m.HostPath+":"+m.ContainerPath)
	}
	for _, e := range chat.EnvVars {
		if e.Key == store.ReservedEnvKey {
			continue
		}
		args = append(args, "--env", fmt.Sprintf("%s=%s", e.Key, e.Value))
	}

	args = append(args,
		"--env", fmt.Sprintf("AGENT_HUB_ARTIFACTS_URL=%s/api/chats/%s/artifacts/publish", hubBaseURL, chat.ID),
		"--env", fmt.Sprintf("AGENT_HUB_ARTIFACT_TOKEN=%s", artifactToken),
		"--env", fmt.Sprintf("AGENT_HUB_READY_ACK_GUID=%s", readyACKGUID),
		"--agent-type", string(chat.AgentType),
	)

	if len(chat.AgentArgs) > 0 {
		args = append(args, "--")
		args = append(args, chat.AgentArgs...)
	}
	return args
}

// credentialArgsFor builds the agent_cli flags that point at vault files,
// omitting any whose file is absent.
func credentialArgsFor(openAIKeyPath string) []string {
	if openAIKeyPath == "" {
		return nil
	}
	return []string{"--credential-file", openAIKeyPath}
}

func sshArgsFor(sshKeyPath, knownHostsPath string) []string {
	var args []string
	if sshKeyPath != "" {
		args = append(args, "--ssh-key", sshKeyPath)
	}
	if knownHostsPath != "" {
		args = append(args, "--ssh-known-hosts", knownHostsPath)
	}
	return args
}
